package usage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/backup"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/usage"
)

// TestUsageCountsDedup backs up the same file twice, under two different
// source trees, and checks that the second backup's shared content is
// counted as reused rather than doubling the unique total.
func TestUsageCountsDedup(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src1 := t.TempDir()
	contents := []byte("the same bytes, backed up from two different places")
	if err := os.WriteFile(filepath.Join(src1, "a.txt"), contents, 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src1}, Author: "tester"}); err != nil {
		t.Fatal(err)
	}

	src2 := t.TempDir()
	if err := os.WriteFile(filepath.Join(src2, "b.txt"), contents, 0644); err != nil {
		t.Fatal(err)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src2}, Author: "tester"}); err != nil {
		t.Fatal(err)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := usage.Run(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Snapshots != 2 {
		t.Fatalf("expected 2 snapshots, got %d", stats.Snapshots)
	}
	if stats.ReusedBytes == 0 {
		t.Fatal("expected the second backup's duplicate chunk to count as reused")
	}
}
