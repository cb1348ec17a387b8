// Package rebuild implements rebuild-index: discarding every index currently
// on a repository's backend and replacing it with one built fresh by reading
// every pack's own trailer, for when the indexes are missing, stale, or
// suspected corrupt.
package rebuild

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
)

// Stats summarizes what Run did.
type Stats struct {
	Packs          int
	SupersededIdxs int
}

// Run reads every pack on repo's backend, builds one index naming them all,
// uploads it superseding every index currently live, then removes those
// superseded indexes. The new index is durable before any old one is
// touched, so a crash mid-rebuild never leaves the repository without a
// valid index of its packs.
func Run(ctx context.Context, repo *repository.Repository, opts Options) (Stats, error) {
	supersedes, err := listIndexIDs(ctx, repo)
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing current indexes")
	}

	var packIDs []objid.ID
	err = repo.Backend.List(ctx, backend.Pack, func(e backend.Entry) error {
		id, err := objid.Parse(e.Name)
		if err != nil {
			return errors.Wrapf(err, "pack name %v isn't a valid ID", e.Name)
		}
		packIDs = append(packIDs, id)
		return nil
	})
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing packs")
	}

	debug.Log("rebuild-index: %d packs, %d indexes to supersede", len(packIDs), len(supersedes))

	idx := index.New()
	idx.Supersedes = supersedes
	for _, packID := range packIDs {
		if opts.Ignore.Has(packID) {
			debug.Log("rebuild-index: ignoring pack %s", packID)
			continue
		}
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		manifest, err := readManifest(ctx, repo, packID)
		if err != nil {
			return Stats{}, errors.Wrapf(err, "reading pack %s", packID)
		}
		idx.Packs[packID] = manifest
	}

	stats := Stats{Packs: len(idx.Packs), SupersededIdxs: len(supersedes)}

	if len(idx.Packs) == 0 && len(supersedes) == 0 {
		debug.Log("rebuild-index: no packs and no indexes, nothing to do")
		return stats, nil
	}

	var buf bytes.Buffer
	id, err := index.Encode(&buf, idx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "encoding rebuilt index")
	}
	if err := repo.Backend.Write(ctx, backend.Index, id.String(), &buf); err != nil {
		return Stats{}, errors.Wrap(err, "uploading rebuilt index")
	}
	debug.Log("rebuild-index: wrote index %s covering %d packs", id, len(idx.Packs))

	for oldID := range supersedes {
		if err := repo.Backend.Remove(ctx, backend.Index, oldID.String()); err != nil {
			return stats, errors.Wrapf(err, "removing superseded index %s", oldID)
		}
	}

	return stats, nil
}

// Options configures a rebuild.
type Options struct {
	// Ignore names packs to leave out of the rebuilt index entirely, e.g.
	// ones a concurrent prune is about to delete.
	Ignore objid.Set
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

// readManifest reads packID's trailer straight off the backend to recover
// its manifest, bypassing the index entirely (the whole point of a rebuild
// is to stop trusting it).
func readManifest(ctx context.Context, repo *repository.Repository, packID objid.ID) (pack.Manifest, error) {
	rc, err := repo.Backend.Read(ctx, backend.Pack, packID.String())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, "reading pack")
	}
	return pack.ManifestFromReader(bytes.NewReader(data))
}
