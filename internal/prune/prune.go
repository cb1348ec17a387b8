// Package prune implements garbage collection: finding packs no snapshot
// references any more, dropping the ones that are entirely unused, and
// repacking the loose, still-reachable blobs out of the rest.
package prune

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/backup"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/tree"
)

// Stats summarizes what a prune did (or, with DryRun, would do).
type Stats struct {
	// ReusablePacks held only blobs every surviving snapshot still
	// references, and are kept exactly as they are.
	ReusablePacks int
	// RepackedPacks held a mix of reachable and unreachable blobs; their
	// reachable blobs were copied into fresh packs.
	RepackedPacks int
	// DroppedPacks held no reachable blobs at all and were deleted
	// outright.
	DroppedPacks int
}

// Options configures a prune run.
type Options struct {
	// DryRun reports what a prune would do without writing or deleting
	// anything.
	DryRun bool
}

// Run garbage-collects repo: every pack is partitioned into one still
// entirely in use (kept as-is), one with no reachable blobs (dropped), or
// one with a mix (its reachable blobs are repacked). The repacked packs
// get their own index from the packer, then a fresh index covering the
// kept packs and superseding every index currently live is written; only
// once those are durable are the old indexes and pruned packs removed.
func Run(ctx context.Context, repo *repository.Repository, opts Options) (Stats, error) {
	snapshots, err := loadSnapshotsAndForests(ctx, repo)
	if err != nil {
		return Stats{}, errors.Wrap(err, "loading snapshots")
	}

	reachable := reachableBlobs(snapshots)

	reusable, toPrune := partitionPacks(repo.Master, reachable)
	droppable, sparse := partitionDroppable(toPrune, reachable)

	stats := Stats{
		ReusablePacks: len(reusable),
		RepackedPacks: len(sparse),
		DroppedPacks:  len(droppable),
	}

	if len(toPrune) == 0 {
		debug.Log("prune: every pack is entirely in use, nothing to do")
		return stats, nil
	}

	supersedes, err := listIndexIDs(ctx, repo)
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing current indexes")
	}

	debug.Log("prune: keep %d packs, repack %d, drop %d, replace %d indexes",
		len(reusable), len(sparse), len(droppable), len(supersedes))

	if opts.DryRun {
		return stats, nil
	}

	// Blobs already covered by a pack we're keeping as-is don't need to
	// be repacked even though they're reachable.
	packed := make(objid.Set)
	for _, manifest := range reusable {
		for _, e := range manifest {
			packed.Insert(e.ID)
		}
	}

	p, err := backup.NewPacker(ctx, repo, nil)
	if err != nil {
		return Stats{}, err
	}
	if err := repackLoose(ctx, repo, snapshots, packed, p); err != nil {
		p.Abandon()
		return Stats{}, errors.Wrap(err, "repacking loose blobs")
	}
	if err := p.Finish(); err != nil {
		return Stats{}, err
	}

	// The packs we kept as-is still need to be named by a live index once
	// every index that named them (among other, now-dropped things) is
	// gone. Write that index - superseding every index currently on the
	// backend - before touching anything else, so there's never a moment
	// where a reusable pack isn't covered by some live index.
	if err := uploadReusableIndex(ctx, repo, reusable, supersedes); err != nil {
		return Stats{}, err
	}

	for id := range supersedes {
		if err := repo.Backend.Remove(ctx, backend.Index, id.String()); err != nil {
			return Stats{}, errors.Wrapf(err, "removing superseded index %s", id)
		}
	}
	for id := range toPrune {
		if err := repo.Backend.Remove(ctx, backend.Pack, id.String()); err != nil {
			return Stats{}, errors.Wrapf(err, "removing pruned pack %s", id)
		}
	}

	return stats, nil
}

func listIndexIDs(ctx context.Context, repo *repository.Repository) (objid.Set, error) {
	ids := make(objid.Set)
	err := repo.Backend.List(ctx, backend.Index, func(e backend.Entry) error {
		id, err := objid.Parse(e.Name)
		if err != nil {
			return errors.Wrapf(err, "index name %v isn't a valid ID", e.Name)
		}
		ids.Insert(id)
		return nil
	})
	return ids, err
}

// uploadReusableIndex writes (and uploads) a single index file naming
// exactly the packs in reusable, superseding every index in supersedes.
// Unlike backup.Packer's incremental Writer, the whole Packs map is known
// up front, so there's no need for the rewrite-as-we-go machinery - just
// encode it once.
func uploadReusableIndex(ctx context.Context, repo *repository.Repository, reusable map[objid.ID]pack.Manifest, supersedes objid.Set) error {
	idx := index.New()
	idx.Supersedes = supersedes
	for id, manifest := range reusable {
		idx.Packs[id] = manifest
	}

	var buf bytes.Buffer
	id, err := index.Encode(&buf, idx)
	if err != nil {
		return errors.Wrap(err, "encoding reusable-pack index")
	}
	if err := repo.Backend.Write(ctx, backend.Index, id.String(), &buf); err != nil {
		return errors.Wrap(err, "uploading reusable-pack index")
	}
	debug.Log("prune: wrote index %s covering %d reusable packs, superseding %d", id, len(reusable), len(supersedes))
	return nil
}

// namedSnapshot pairs a decoded snapshot's forest with the tree id it
// walks from, for blob-reachability analysis.
type namedSnapshot struct {
	id     objid.ID
	root   objid.ID
	forest tree.Forest
}
