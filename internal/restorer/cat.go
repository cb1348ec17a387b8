package restorer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// CatBlob writes a chunk's raw bytes, or a tree's JSON representation, to w.
// Which one depends on how the blob is tagged in the pack manifest that
// holds it.
func CatBlob(ctx context.Context, w io.Writer, repo *repository.Repository, id objid.ID) error {
	packID, ok := repo.Master.PackOf(id)
	if !ok {
		return errors.Errorf("can't find blob %s in the index", id)
	}
	var entry pack.ManifestEntry
	found := false
	for _, e := range repo.Master.Packs[packID] {
		if e.ID == id {
			entry, found = e, true
			break
		}
	}
	if !found {
		return errors.Errorf("blob %s missing from pack %s's own manifest", id, packID)
	}

	data, err := repo.LoadBlob(ctx, id)
	if err != nil {
		return err
	}

	switch entry.Type {
	case pack.Chunk:
		_, err := w.Write(data)
		return err
	case pack.Tree:
		t, err := tree.Deserialize(data)
		if err != nil {
			return errors.Wrapf(err, "decoding tree %s", id)
		}
		return json.NewEncoder(w).Encode(t)
	default:
		return errors.Errorf("blob %s has unknown type %s", id, entry.Type)
	}
}

// CatPack writes a pack's manifest (read straight from its trailer) as JSON.
func CatPack(ctx context.Context, w io.Writer, repo *repository.Repository, id objid.ID) error {
	rc, err := repo.Backend.Read(ctx, backend.Pack, id.String())
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return errors.Wrap(err, "reading pack")
	}
	manifest, err := pack.ManifestFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(manifest)
}

// CatIndex writes an index file's contents as JSON.
func CatIndex(ctx context.Context, w io.Writer, repo *repository.Repository, id objid.ID) error {
	rc, err := repo.Backend.Read(ctx, backend.Index, id.String())
	if err != nil {
		return err
	}
	defer rc.Close()
	idx, err := index.Decode(rc)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(idx)
}

// CatSnapshot writes a snapshot's contents as JSON.
func CatSnapshot(ctx context.Context, w io.Writer, repo *repository.Repository, id objid.ID) error {
	rc, err := repo.Backend.Read(ctx, backend.Snapshot, id.String())
	if err != nil {
		return err
	}
	defer rc.Close()
	s, err := snapshot.Decode(rc)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(s)
}
