package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// resolveSnapshot finds the snapshot whose id has ref as a prefix (or is
// exactly "latest", meaning the most recently taken snapshot) and decodes
// it. ref may be as short as the user likes, as long as it's unambiguous.
func resolveSnapshot(ctx context.Context, repo *repository.Repository, ref string) (objid.ID, snapshot.Snapshot, error) {
	ids, err := repo.Snapshots(ctx)
	if err != nil {
		return objid.Zero, snapshot.Snapshot{}, err
	}

	if ref == "latest" {
		var latestID objid.ID
		var latest snapshot.Snapshot
		found := false
		for _, id := range ids {
			s, err := readSnapshot(ctx, repo, id)
			if err != nil {
				return objid.Zero, snapshot.Snapshot{}, err
			}
			if !found || s.Time.After(latest.Time) {
				latestID, latest, found = id, s, true
			}
		}
		if !found {
			return objid.Zero, snapshot.Snapshot{}, errors.New("no snapshots in this repository")
		}
		return latestID, latest, nil
	}

	var matchID objid.ID
	matches := 0
	for _, id := range ids {
		if strings.HasPrefix(id.String(), ref) {
			matchID = id
			matches++
		}
	}
	switch matches {
	case 0:
		return objid.Zero, snapshot.Snapshot{}, errors.Errorf("no snapshot matches %q", ref)
	case 1:
		s, err := readSnapshot(ctx, repo, matchID)
		return matchID, s, err
	default:
		return objid.Zero, snapshot.Snapshot{}, errors.Errorf("%q matches more than one snapshot, be more specific", ref)
	}
}

func readSnapshot(ctx context.Context, repo *repository.Repository, id objid.ID) (snapshot.Snapshot, error) {
	rc, err := repo.Backend.Read(ctx, backend.Snapshot, id.String())
	if err != nil {
		return snapshot.Snapshot{}, errors.Wrapf(err, "reading snapshot %s", id)
	}
	defer rc.Close()
	return snapshot.Decode(rc)
}

// loadForest rebuilds the Forest reachable from a snapshot's root tree, the
// same way internal/backup and internal/prune each do it for their own
// purposes.
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
