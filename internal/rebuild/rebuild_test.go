package rebuild_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/backup"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/rebuild"
	"github.com/mrkline/backpak/internal/repository"
)

func countEntries(t *testing.T, be backend.Backend, kind backend.Kind) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	if err := be.List(ctx, kind, func(backend.Entry) error { n++; return nil }); err != nil {
		t.Fatal(err)
	}
	return n
}

// TestRebuildReplacesIndexes backs up a tree, deletes its index out from
// under it (simulating a lost or corrupt one), and checks that rebuild-index
// recovers a master index covering every blob from the pack trailers alone.
func TestRebuildReplacesIndexes(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file.txt"), []byte("rebuildable contents"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}, Author: "tester"}); err != nil {
		t.Fatal(err)
	}

	packsBefore := countEntries(t, be, backend.Pack)
	if packsBefore == 0 {
		t.Fatal("expected at least one pack after backing up")
	}

	// Lose every index, as if it were deleted or never written.
	var lostIdx []string
	if err := be.List(ctx, backend.Index, func(e backend.Entry) error {
		lostIdx = append(lostIdx, e.Name)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	for _, name := range lostIdx {
		if err := be.Remove(ctx, backend.Index, name); err != nil {
			t.Fatal(err)
		}
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(repo.Master.Packs); got != 0 {
		t.Fatalf("expected a repository opened with no indexes to know of no packs, got %d", got)
	}

	stats, err := rebuild.Run(ctx, repo, rebuild.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Packs != packsBefore {
		t.Fatalf("rebuilt index covers %d packs, want %d", stats.Packs, packsBefore)
	}
	if stats.SupersededIdxs != 0 {
		t.Fatalf("expected nothing to supersede once the old indexes were gone, got %d", stats.SupersededIdxs)
	}
	if got := countEntries(t, be, backend.Index); got != 1 {
		t.Fatalf("expected exactly one index after rebuild, got %d", got)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(repo.Master.Packs); got != packsBefore {
		t.Fatalf("reopened repository sees %d packs, want %d", got, packsBefore)
	}
}

// TestRebuildSupersedesExistingIndexes rebuilds over a repository that
// already has a valid index, and checks the stale index is replaced rather
// than left alongside the new one.
func TestRebuildSupersedesExistingIndexes(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file.txt"), []byte("some contents"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}, Author: "tester"}); err != nil {
		t.Fatal(err)
	}

	indexesBefore := countEntries(t, be, backend.Index)
	if indexesBefore == 0 {
		t.Fatal("expected at least one index after backing up")
	}

	stats, err := rebuild.Run(ctx, repo, rebuild.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.SupersededIdxs != indexesBefore {
		t.Fatalf("expected to supersede the %d existing indexes, superseded %d", indexesBefore, stats.SupersededIdxs)
	}
	if got := countEntries(t, be, backend.Index); got != 1 {
		t.Fatalf("expected exactly one index after rebuild, got %d", got)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	for id := range repo.Master.Packs {
		if !repo.Master.HasBlob(id) {
			t.Fatalf("pack %s lost from the rebuilt master index", id)
		}
	}
}

func TestRebuildIgnoresNamedPacks(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file.txt"), []byte("some contents"), 0644); err != nil {
		t.Fatal(err)
	}

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backup.Run(ctx, repo, backup.Options{Paths: []string{src}, Author: "tester"}); err != nil {
		t.Fatal(err)
	}

	repo, err = repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	var packID objid.ID
	for id := range repo.Master.Packs {
		packID = id
		break
	}

	ignore := make(objid.Set)
	ignore.Insert(packID)

	stats, err := rebuild.Run(ctx, repo, rebuild.Options{Ignore: ignore})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Packs != len(repo.Master.Packs)-1 {
		t.Fatalf("expected the rebuilt index to skip the ignored pack, got %d packs", stats.Packs)
	}
}
