// Package checker runs consistency checks on a repository: every pack an
// index claims to have is actually readable, and every blob a snapshot's
// tree references is actually present in some pack.
//
// A Checker only tests for internal errors within the repository's own data
// structures; it has no opinion on whether the data restores to what a user
// expects.
package checker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// Options configures a Run.
type Options struct {
	// ReadPacks decompresses and re-hashes every blob in every live pack
	// against the index's record of its id, catching corruption the
	// index alone can't (an index only claims a pack contains a blob; it
	// doesn't prove the bytes still back that claim up).
	ReadPacks bool
}

// Stats summarizes what Run looked at.
type Stats struct {
	Packs     int
	Blobs     int
	Snapshots int
}

// Problem is one thing Run found wrong. Run collects every problem it can
// rather than stopping at the first, so one invocation reports everything
// wrong with the repository instead of one error at a time across repeated
// runs.
type Problem struct {
	Description string
}

func (p Problem) String() string { return p.Description }

// Run checks repo's indexes against its packs, then every snapshot's tree
// against the union of both. It returns every Problem found; a nil or empty
// slice with a nil error means the repository checked out clean.
func Run(ctx context.Context, repo *repository.Repository, opts Options) (Stats, []Problem, error) {
	var stats Stats
	var problems []Problem

	stats.Packs = len(repo.Master.Packs)
	for packID, manifest := range repo.Master.Packs {
		stats.Blobs += len(manifest)

		if err := ctx.Err(); err != nil {
			return stats, problems, err
		}

		raw, err := readPack(ctx, repo, packID)
		if err != nil {
			problems = append(problems, Problem{fmt.Sprintf("pack %s: %v", packID, err)})
			continue
		}

		onDisk, err := pack.ManifestFromReader(bytes.NewReader(raw))
		if err != nil {
			problems = append(problems, Problem{fmt.Sprintf("pack %s: reading manifest: %v", packID, err)})
			continue
		}
		if prob := compareManifests(packID, manifest, onDisk); prob != "" {
			problems = append(problems, Problem{prob})
		}

		if opts.ReadPacks {
			debug.Log("checker: re-hashing %d blobs in pack %s", len(manifest), packID)
			if err := pack.Verify(bytes.NewReader(raw), manifest); err != nil {
				problems = append(problems, Problem{fmt.Sprintf("pack %s: %v", packID, err)})
			}
		}
	}

	snapshots, err := loadSnapshots(ctx, repo)
	if err != nil {
		return stats, problems, errors.Wrap(err, "loading snapshots")
	}
	stats.Snapshots = len(snapshots)

	for _, s := range snapshots {
		forest, err := loadForest(ctx, repo, s.Tree)
		if err != nil {
			problems = append(problems, Problem{fmt.Sprintf("snapshot %s: %v", s.id, err)})
			continue
		}
		for id := range forest {
			if !repo.Master.HasBlob(id) {
				problems = append(problems, Problem{fmt.Sprintf("snapshot %s: missing tree blob %s", s.id, id)})
			}
		}
		for id := range forest.Chunks() {
			if !repo.Master.HasBlob(id) {
				problems = append(problems, Problem{fmt.Sprintf("snapshot %s: missing chunk %s", s.id, id)})
			}
		}
	}

	return stats, problems, nil
}

// readPack reads packID straight off the backend, bypassing the on-disk
// cache, so a stale or corrupt cached copy can't hide a problem with what's
// actually stored.
func readPack(ctx context.Context, repo *repository.Repository, packID objid.ID) ([]byte, error) {
	rc, err := repo.Backend.Read(ctx, backend.Pack, packID.String())
	if err != nil {
		return nil, errors.Wrap(err, "reading pack")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, "reading pack")
	}
	return data, nil
}

// compareManifests reports a problem description if the index's record of a
// pack's contents doesn't match what the pack itself claims, or "" if they
// agree.
func compareManifests(packID objid.ID, indexed, onDisk pack.Manifest) string {
	if len(indexed) != len(onDisk) {
		return fmt.Sprintf("pack %s: index has %d blobs, pack trailer has %d", packID, len(indexed), len(onDisk))
	}
	byID := make(map[objid.ID]pack.ManifestEntry, len(onDisk))
	for _, e := range onDisk {
		byID[e.ID] = e
	}
	for _, e := range indexed {
		got, ok := byID[e.ID]
		if !ok {
			return fmt.Sprintf("pack %s: index references blob %s not in the pack's own trailer", packID, e.ID)
		}
		if got.Length != e.Length {
			return fmt.Sprintf("pack %s: blob %s length disagrees between index (%d) and pack (%d)", packID, e.ID, e.Length, got.Length)
		}
	}
	return ""
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

// loadForest rebuilds the Forest reachable from root. Duplicated in spirit
// from internal/backup and internal/prune's own versions of this walk:
// each caller wants something slightly different out of it (here, just the
// ids it touched, to check against the index), and a shared helper
// generic enough for all three callers would need its own indirection to
// stay worth it.
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
