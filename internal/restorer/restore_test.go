package restorer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/backup"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/restorer"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// loadForest rebuilds the Forest reachable from root, the same way
// internal/backup and internal/prune each do for their own callers.
func loadForest(t *testing.T, ctx context.Context, repo *repository.Repository, root objid.ID) tree.Forest {
	t.Helper()
	forest := make(tree.Forest)
	var load func(id objid.ID) error
	load = func(id objid.ID) error {
		if _, ok := forest[id]; ok {
			return nil
		}
		data, err := repo.LoadBlob(ctx, id)
		if err != nil {
			return err
		}
		tr, err := tree.Deserialize(data)
		if err != nil {
			return err
		}
		forest[id] = tr
		for _, n := range tr {
			if n.Type == tree.Directory {
				if err := load(n.Subtree); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := load(root); err != nil {
		t.Fatal(err)
	}
	return forest
}

func loadSnapshot(t *testing.T, ctx context.Context, repo *repository.Repository, id objid.ID) snapshot.Snapshot {
	t.Helper()
	rc, err := repo.Backend.Read(ctx, backend.Snapshot, id.String())
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	s, err := snapshot.Decode(rc)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRestoreWritesSnapshotContents(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hello, restore"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested contents"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snapID, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap := loadSnapshot(t, ctx, repo, snapID)
	forest := loadForest(t, ctx, repo, snap.Tree)

	out := t.TempDir()
	stats, err := restorer.Restore(ctx, repo, snap, forest, restorer.Options{Output: out})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Added == 0 {
		t.Fatal("expected Restore to report added entries")
	}

	base := filepath.Base(src)
	got, err := os.ReadFile(filepath.Join(out, base, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello, restore" {
		t.Fatalf("got %q", got)
	}
	got, err = os.ReadFile(filepath.Join(out, base, "sub", "nested.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "nested contents" {
		t.Fatalf("got %q", got)
	}
}

func TestRestoreDryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snapID, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap := loadSnapshot(t, ctx, repo, snapID)
	forest := loadForest(t, ctx, repo, snap.Tree)

	out := t.TempDir()
	stats, err := restorer.Restore(ctx, repo, snap, forest, restorer.Options{Output: out, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Added == 0 {
		t.Fatal("expected dry run to still report what it would add")
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("dry run should not have written anything, found %v", entries)
	}
}

func TestRestoreDeleteRemovesExtraFiles(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snapID, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap := loadSnapshot(t, ctx, repo, snapID)
	forest := loadForest(t, ctx, repo, snap.Tree)

	out := t.TempDir()
	base := filepath.Base(src)
	if err := os.MkdirAll(filepath.Join(out, base), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, base, "extra.txt"), []byte("shouldn't survive"), 0644); err != nil {
		t.Fatal(err)
	}

	stats, err := restorer.Restore(ctx, repo, snap, forest, restorer.Options{Output: out, Delete: true})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", stats.Removed)
	}
	if _, err := os.Stat(filepath.Join(out, base, "extra.txt")); !os.IsNotExist(err) {
		t.Fatalf("extra.txt should have been removed, stat err = %v", err)
	}
}
