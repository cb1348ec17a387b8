package config_test

import (
	"context"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/config"
	"github.com/mrkline/backpak/internal/pack"
)

func TestRepoConfigRoundTrips(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	want := config.NewRepo("filesystem", 0, "gpg --encrypt --quiet --recipient me", "gpg --decrypt --quiet")
	if want.PackSize != pack.DefaultTargetSize {
		t.Fatalf("NewRepo with packSize=0 should default to pack.DefaultTargetSize, got %d", want.PackSize)
	}

	if err := config.WriteRepo(ctx, be, want); err != nil {
		t.Fatal(err)
	}

	got, err := config.LoadRepo(ctx, be)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestDefaultUserConfig(t *testing.T) {
	u := config.DefaultUser()
	if u.CacheSize == 0 {
		t.Fatal("DefaultUser should have a nonzero cache size")
	}
}
