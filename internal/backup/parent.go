package backup

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// namedSnapshot pairs a decoded Snapshot with the id it was stored under.
type namedSnapshot struct {
	snapshot.Snapshot
	ID objid.ID
}

// loadChronologically reads every snapshot off repo's backend, oldest
// first.
func loadChronologically(ctx context.Context, repo *repository.Repository) ([]namedSnapshot, error) {
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
		snap, err := snapshot.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "decoding snapshot %s", id)
		}
		out = append(out, namedSnapshot{Snapshot: snap, ID: id})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// parentSnapshot returns the most recent snapshot covering exactly the same
// set of paths as this backup, so its tree can be diffed against to reuse
// unchanged files' chunks. Returns nil if there's no such snapshot.
func parentSnapshot(paths []string, snapshots []namedSnapshot) *namedSnapshot {
	for i := len(snapshots) - 1; i >= 0; i-- {
		if pathsEqual(snapshots[i].Paths, paths) {
			return &snapshots[i]
		}
	}
	return nil
}

// pathsEqual reports whether a and b contain the same set of paths,
// regardless of order. Both are expected to already be sorted (snapshot.New
// and canonicalize both sort), but this doesn't assume it.
func pathsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// forestFromRoot rebuilds the Forest reachable from a tree blob already
// uploaded to repo, reading each (sub)tree back out on demand rather than
// requiring every past backup's Forest to be kept around locally.
func forestFromRoot(ctx context.Context, repo *repository.Repository, root objid.ID) (tree.Forest, error) {
	forest := make(tree.Forest)
	if err := loadTreeInto(ctx, repo, root, forest); err != nil {
		return nil, err
	}
	return forest, nil
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
