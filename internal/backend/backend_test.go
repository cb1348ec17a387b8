package backend_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
)

func exerciseBackend(t *testing.T, b backend.Backend) {
	t.Helper()
	ctx := context.Background()

	h1, h2 := b.Hasher(), b.Hasher()
	h1.Write([]byte("same input"))
	h2.Write([]byte("same input"))
	if h1.Sum(nil) == nil || string(h1.Sum(nil)) != string(h2.Sum(nil)) {
		t.Fatal("Hasher() should be deterministic across instances")
	}

	if err := b.Write(ctx, backend.Pack, "abc123", bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatal(err)
	}

	ok, err := b.Probe(ctx, backend.Pack, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("probe returned false after a write")
	}

	rc, err := b.Read(ctx, backend.Pack, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("read back %q, want %q", data, "hello")
	}

	var names []string
	if err := b.List(ctx, backend.Pack, func(e backend.Entry) error {
		names = append(names, e.Name)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "abc123" {
		t.Fatalf("list returned %v, want [abc123]", names)
	}

	if err := b.Remove(ctx, backend.Pack, "abc123"); err != nil {
		t.Fatal(err)
	}
	ok, err = b.Probe(ctx, backend.Pack, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("probe returned true after remove")
	}

	if _, err := b.Read(ctx, backend.Pack, "abc123"); !backend.IsNotExist(err) {
		t.Fatalf("expected ErrNotExist reading a removed key, got %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, backend.NewMemory())
}

func TestFilesystemBackend(t *testing.T) {
	dir := t.TempDir()
	fs, err := backend.InitFilesystem(dir)
	if err != nil {
		t.Fatal(err)
	}
	exerciseBackend(t, fs)
}

func TestSemaphoredBackend(t *testing.T) {
	exerciseBackend(t, backend.NewSemaphored(backend.NewMemory(), 2))
}
