package repository

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/cache"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
)

// DefaultBlobCacheSize is used when a Repository isn't given an explicit
// in-memory blob cache budget.
const DefaultBlobCacheSize = 2 * pack.DefaultTargetSize

// Repository is the read side every other operation (restore, diff, ls,
// dump, prune) is built on: a Backend, the union of every live index on
// it, and the local caches that keep repeated reads cheap.
type Repository struct {
	Backend backend.Backend
	Master  index.Master

	disk  *cache.Cache // may be nil: caching packs on disk is optional
	blobs *blobCache
}

// Open lists every index on be, merges them into a master index, and
// returns a Repository ready to serve blob reads. disk may be nil to skip
// the on-disk pack cache (e.g. for a Memory-backed test repository).
func Open(ctx context.Context, be backend.Backend, disk *cache.Cache, blobCacheSize int) (*Repository, error) {
	if blobCacheSize <= 0 {
		blobCacheSize = DefaultBlobCacheSize
	}

	indexes := make(map[objid.ID]index.Index)
	err := be.List(ctx, backend.Index, func(e backend.Entry) error {
		id, err := objid.Parse(e.Name)
		if err != nil {
			return errors.Wrapf(err, "index name %v isn't a valid ID", e.Name)
		}

		rc, err := be.Read(ctx, backend.Index, e.Name)
		if err != nil {
			return errors.Wrapf(err, "reading index %v", e.Name)
		}
		defer rc.Close()

		idx, err := index.Decode(rc)
		if err != nil {
			return errors.Wrapf(err, "decoding index %v", e.Name)
		}
		indexes[id] = idx
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing indexes")
	}

	debug.Log("repository: loaded %d indexes", len(indexes))

	return &Repository{
		Backend: be,
		Master:  index.BuildMaster(indexes),
		disk:    disk,
		blobs:   newBlobCache(blobCacheSize),
	}, nil
}

// BlobSize returns the on-disk (compressed-stream-entry) length of a blob,
// without reading its contents.
func (r *Repository) BlobSize(id objid.ID) (uint64, bool) {
	packID, ok := r.Master.PackOf(id)
	if !ok {
		return 0, false
	}
	for _, e := range r.Master.Packs[packID] {
		if e.ID == id {
			return uint64(e.Length), true
		}
	}
	return 0, false
}

// LoadBlob returns the decompressed contents of the blob with the given
// id, reading through the in-memory blob cache, then the on-disk pack
// cache (if any), then the backend itself.
func (r *Repository) LoadBlob(ctx context.Context, id objid.ID) ([]byte, error) {
	return r.blobs.getOrCompute(id, func() ([]byte, error) {
		packID, ok := r.Master.PackOf(id)
		if !ok {
			return nil, errors.Errorf("no pack contains blob %v", id)
		}
		manifest, ok := r.Master.Packs[packID]
		if !ok {
			return nil, errors.Errorf("pack %v missing from master index", packID)
		}

		packReader, err := r.openPack(ctx, packID)
		if err != nil {
			return nil, err
		}
		defer packReader.Close()

		return pack.ExtractBlob(packReader, id, manifest)
	})
}

// openPack returns a reader over the full contents of the given pack,
// preferring the on-disk cache and falling back to (and populating) it
// from the backend.
func (r *Repository) openPack(ctx context.Context, packID objid.ID) (io.ReadCloser, error) {
	name := packID.String()

	if r.disk != nil {
		if fh, err := r.disk.TryRead(name); err != nil {
			return nil, errors.Wrapf(err, "checking disk cache for pack %v", packID)
		} else if fh != nil {
			debug.Log("repository: pack %v served from disk cache", packID)
			return fh, nil
		}
	}

	rc, err := r.Backend.Read(ctx, backend.Pack, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading pack %v", packID)
	}
	defer rc.Close()

	if r.disk == nil {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	fh, err := r.disk.Insert(name, rc)
	if err != nil {
		return nil, errors.Wrapf(err, "caching pack %v", packID)
	}
	return fh, nil
}

// Snapshots lists every snapshot id on the backend.
func (r *Repository) Snapshots(ctx context.Context) ([]objid.ID, error) {
	var ids []objid.ID
	err := r.Backend.List(ctx, backend.Snapshot, func(e backend.Entry) error {
		id, err := objid.Parse(e.Name)
		if err != nil {
			return errors.Wrapf(err, "snapshot name %v isn't a valid ID", e.Name)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}
