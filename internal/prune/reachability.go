package prune

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// loadSnapshotsAndForests reads every snapshot and rebuilds the Forest its
// tree walks, newest last (so callers repacking want to walk it in
// reverse, prioritizing newer snapshots' locality).
func loadSnapshotsAndForests(ctx context.Context, repo *repository.Repository) ([]namedSnapshot, error) {
	ids, err := repo.Snapshots(ctx)
	if err != nil {
		return nil, err
	}

	type decoded struct {
		id   objid.ID
		snap snapshot.Snapshot
	}
	all := make([]decoded, 0, len(ids))
	for _, id := range ids {
		rc, err := repo.Backend.Read(ctx, backend.Snapshot, id.String())
		if err != nil {
			return nil, errors.Wrapf(err, "reading snapshot %s", id)
		}
		snap, err := snapshot.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "decoding snapshot %s", id)
		}
		all = append(all, decoded{id: id, snap: snap})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].snap.Time.Before(all[j].snap.Time) })

	out := make([]namedSnapshot, 0, len(all))
	for _, d := range all {
		forest := make(tree.Forest)
		if err := loadTreeInto(ctx, repo, d.snap.Tree, forest); err != nil {
			return nil, errors.Wrapf(err, "rebuilding tree for snapshot %s", d.id)
		}
		out = append(out, namedSnapshot{id: d.id, root: d.snap.Tree, forest: forest})
	}
	return out, nil
}

func loadTreeInto(ctx context.Context, repo *repository.Repository, id objid.ID, forest tree.Forest) error {
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
			if err := loadTreeInto(ctx, repo, n.Subtree, forest); err != nil {
				return err
			}
		}
	}
	return nil
}

// reachableBlobs is the union, across every snapshot, of every file chunk
// id its Forest references, plus every tree id in any of those Forests
// (a Forest's own keys are exactly the tree ids reachable from it).
func reachableBlobs(snapshots []namedSnapshot) objid.Set {
	reachable := make(objid.Set)
	for _, s := range snapshots {
		for treeID := range s.forest {
			reachable.Insert(treeID)
		}
		for chunkID := range s.forest.Chunks() {
			reachable.Insert(chunkID)
		}
	}
	return reachable
}

// partitionPacks splits master's live packs into ones whose every blob is
// reachable (kept as-is) and ones with at least one unreachable blob
// (candidates for repacking or dropping).
func partitionPacks(master index.Master, reachable objid.Set) (reusable, toPrune map[objid.ID]pack.Manifest) {
	reusable = make(map[objid.ID]pack.Manifest)
	toPrune = make(map[objid.ID]pack.Manifest)

	for packID, manifest := range master.Packs {
		allReachable := true
		for _, e := range manifest {
			if !reachable.Has(e.ID) {
				allReachable = false
				break
			}
		}
		if allReachable {
			reusable[packID] = manifest
		} else {
			toPrune[packID] = manifest
		}
	}
	return reusable, toPrune
}

// partitionDroppable splits toPrune into packs with zero reachable blobs
// (droppable outright) and packs with some (sparse: worth repacking). Only
// used for stats/diagnostics - both groups get the same treatment in Run,
// since a pack with zero reachable blobs simply has nothing copied out of
// it before it's removed.
func partitionDroppable(toPrune map[objid.ID]pack.Manifest, reachable objid.Set) (droppable, sparse map[objid.ID]pack.Manifest) {
	droppable = make(map[objid.ID]pack.Manifest)
	sparse = make(map[objid.ID]pack.Manifest)

	for packID, manifest := range toPrune {
		anyReachable := false
		for _, e := range manifest {
			if reachable.Has(e.ID) {
				anyReachable = true
				break
			}
		}
		if anyReachable {
			sparse[packID] = manifest
		} else {
			droppable[packID] = manifest
		}
	}
	return droppable, sparse
}
