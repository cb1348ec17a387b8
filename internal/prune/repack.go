package prune

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backup"
	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/tree"
)

// repackLoose walks every snapshot's tree, newest first (so chunks from
// more recent backups end up packed near each other), and repacks every
// reachable blob that isn't already covered by a pack being kept as-is.
// packed is mutated as blobs are sent to p, so a blob shared by more than
// one snapshot (or appearing as both a chunk and, degenerately, a tree -
// ids never collide across the two in practice) is only ever read and
// repacked once.
func repackLoose(ctx context.Context, repo *repository.Repository, snapshots []namedSnapshot, packed objid.Set, p *backup.Packer) error {
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		if err := repackTree(ctx, repo, s.root, s.forest, packed, p); err != nil {
			return errors.Wrapf(err, "snapshot %s", s.id)
		}
	}
	return nil
}

func repackTree(ctx context.Context, repo *repository.Repository, id objid.ID, forest tree.Forest, packed objid.Set, p *backup.Packer) error {
	t, ok := forest[id]
	if !ok {
		return errors.Errorf("missing tree %s", id)
	}

	for name, n := range t {
		switch n.Type {
		case tree.File:
			for _, chunkID := range n.Chunks {
				if !packed.Insert(chunkID) {
					continue
				}
				if err := repackBlob(ctx, repo, chunkID, blob.Chunk, p); err != nil {
					return errors.Wrapf(err, "chunk of %s", name)
				}
			}
		case tree.Directory:
			if err := repackTree(ctx, repo, n.Subtree, forest, packed, p); err != nil {
				return err
			}
		case tree.Symlink:
			// Nothing to repack for a symlink.
		}
	}

	if !packed.Insert(id) {
		debug.Log("prune: tree %s already packed", id)
		return nil
	}
	return repackBlob(ctx, repo, id, blob.Tree, p)
}

func repackBlob(ctx context.Context, repo *repository.Repository, id objid.ID, kind blob.Type, p *backup.Packer) error {
	data, err := repo.LoadBlob(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "loading %s %s", kind, id)
	}
	b := blob.Blob{Contents: blob.NewBufferContents(data), ID: id, Kind: kind}
	if err := p.Pack(b); err != nil {
		return errors.Wrapf(err, "repacking %s %s", kind, id)
	}
	return nil
}
