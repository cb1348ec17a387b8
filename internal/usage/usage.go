// Package usage computes size accounting for a repository: how much unique
// data its snapshots actually reference, how much repeated (deduplicated)
// data they'd otherwise have cost, and how that compares to what the packs
// and indexes on the backend actually hold.
package usage

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// Stats summarizes a repository's size accounting.
type Stats struct {
	Snapshots    int
	Oldest, Newest time.Time

	// UniqueBytes is the uncompressed size of the union of every blob any
	// surviving snapshot reaches - the data that would have to be stored
	// even with no deduplication across snapshots collapsed out.
	UniqueBytes uint64
	// ReusedBytes is how much smaller the snapshots' total footprint is
	// than it would be without deduplication: the sum of every snapshot's
	// reachable bytes, minus UniqueBytes.
	ReusedBytes uint64

	Packs       int
	PackedBytes uint64
	Indexes     int
}

// Run computes Stats for repo.
func Run(ctx context.Context, repo *repository.Repository) (Stats, error) {
	var stats Stats

	blobLen := make(map[objid.ID]uint64)
	stats.Packs = len(repo.Master.Packs)
	for _, manifest := range repo.Master.Packs {
		for _, e := range manifest {
			blobLen[e.ID] = uint64(e.Length)
			stats.PackedBytes += uint64(e.Length)
		}
	}

	indexCount := 0
	if err := repo.Backend.List(ctx, backend.Index, func(backend.Entry) error {
		indexCount++
		return nil
	}); err != nil {
		return Stats{}, errors.Wrap(err, "listing indexes")
	}
	stats.Indexes = indexCount

	snapshots, err := loadSnapshots(ctx, repo)
	if err != nil {
		return Stats{}, errors.Wrap(err, "loading snapshots")
	}
	stats.Snapshots = len(snapshots)
	if len(snapshots) > 0 {
		stats.Oldest = snapshots[0].Time
		stats.Newest = snapshots[len(snapshots)-1].Time
	}

	unique := make(objid.Set)
	var totalReachable uint64
	for _, s := range snapshots {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		forest, err := loadForest(ctx, repo, s.Tree)
		if err != nil {
			return Stats{}, errors.Wrapf(err, "snapshot %s", s.id)
		}
		for id := range forest {
			totalReachable += blobLen[id]
			unique.Insert(id)
		}
		for id := range forest.Chunks() {
			totalReachable += blobLen[id]
			unique.Insert(id)
		}
	}

	for id := range unique {
		stats.UniqueBytes += blobLen[id]
	}
	if totalReachable > stats.UniqueBytes {
		stats.ReusedBytes = totalReachable - stats.UniqueBytes
	}

	return stats, nil
}

type namedSnapshot struct {
	snapshot.Snapshot
	id objid.ID
}

func loadSnapshots(ctx context.Context, repo *repository.Repository) ([]namedSnapshot, error) {
	ids, err := repo.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]namedSnapshot, 0, len(ids))
	for _, id := range ids {
		rc, err := repo.Backend.Read(ctx, backend.Snapshot, id.String())
		if err != nil {
			return nil, errors.Wrapf(err, "reading snapshot %s", id)
		}
		s, err := snapshot.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "decoding snapshot %s", id)
		}
		out = append(out, namedSnapshot{Snapshot: s, id: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// loadForest rebuilds the Forest reachable from root, same walk as
// internal/checker and internal/prune's own copies.
func loadForest(ctx context.Context, repo *repository.Repository, root objid.ID) (tree.Forest, error) {
	forest := make(tree.Forest)
	var load func(id objid.ID) error
	load = func(id objid.ID) error {
		if _, ok := forest[id]; ok {
			return nil
		}
		data, err := repo.LoadBlob(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "loading tree %s", id)
		}
		t, err := tree.Deserialize(data)
		if err != nil {
			return errors.Wrapf(err, "decoding tree %s", id)
		}
		forest[id] = t
		for _, n := range t {
			if n.Type == tree.Directory {
				if err := load(n.Subtree); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := load(root); err != nil {
		return nil, err
	}
	return forest, nil
}
