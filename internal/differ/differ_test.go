package differ_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/backup"
	"github.com/mrkline/backpak/internal/differ"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

func loadForest(t *testing.T, ctx context.Context, repo *repository.Repository, root objid.ID) tree.Forest {
	t.Helper()
	forest := make(tree.Forest)
	var load func(id objid.ID)
	load = func(id objid.ID) {
		data, err := repo.LoadBlob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		tr, err := tree.Deserialize(data)
		if err != nil {
			t.Fatal(err)
		}
		forest[id] = tr
		for _, n := range tr {
			if n.Type == tree.Directory {
				load(n.Subtree)
			}
		}
	}
	load(root)
	return forest
}

func loadSnapshot(t *testing.T, ctx context.Context, be backend.Backend, id objid.ID) snapshot.Snapshot {
	t.Helper()
	rc, err := be.Read(ctx, backend.Snapshot, id.String())
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

// TestCompareAddedRemovedChanged backs up one directory, changes it (adds a
// file, removes another, edits a third), backs it up again, and checks that
// Compare reports exactly those changes.
func TestCompareAddedRemovedChanged(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()
	src := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "stays.txt"), []byte("unchanged"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "removed.txt"), []byte("going away"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "edited.txt"), []byte("before"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	id1, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}, Author: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(src, "removed.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "edited.txt"), []byte("after"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "added.txt"), []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}, Author: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap1 := loadSnapshot(t, ctx, be, id1)
	snap2 := loadSnapshot(t, ctx, be, id2)
	forest1 := loadForest(t, ctx, repo, snap1.Tree)
	forest2 := loadForest(t, ctx, repo, snap2.Tree)

	kinds := make(map[string]differ.ChangeKind)
	differ.Compare(snap1.Tree, forest1, snap2.Tree, forest2, "", func(c differ.Change) {
		kinds[c.Path] = c.Kind
	})

	base := filepath.Base(src)
	checks := map[string]differ.ChangeKind{
		base + "/added.txt":   differ.Added,
		base + "/removed.txt": differ.Removed,
		base + "/edited.txt":  differ.ContentsChanged,
	}
	for path, want := range checks {
		got, ok := kinds[path]
		if !ok {
			t.Fatalf("no change reported for %s", path)
		}
		if got != want {
			t.Errorf("%s: got kind %v, want %v", path, got, want)
		}
	}
}
