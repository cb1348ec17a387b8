package backup

import (
	"bytes"
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
)

// Packer streams blobs into one pack at a time, finalizing and uploading it
// (and folding its manifest into a running index) once it's close enough to
// pack.DefaultTargetSize, the way the backup pipeline this is ported from
// batches its packer and indexer stages. Exported so internal/prune can
// drive the same pack/index/upload machinery while repacking, instead of
// reimplementing it.
//
// Unlike that pipeline, which runs chunking, packing, indexing, and
// uploading as separate concurrent stages joined by channels, Packer runs
// synchronously on the caller's goroutine: every blob handed to Pack is
// packed (and, if that finishes a pack or index, uploaded) before Pack
// returns. Simpler, at the cost of not overlapping chunking with network
// writes.
type Packer struct {
	ctx context.Context
	dir string
	be  backend.Backend

	pw *pack.Writer
	iw *index.Writer

	packBytesWritten   uint64
	packBytesNextCheck uint64
}

// NewPacker starts a Packer against repo's backend. supersedes, if
// non-empty, stamps every index this Packer finalizes with the set of
// index ids it replaces. Backup and prune both pass nil.
func NewPacker(ctx context.Context, repo *repository.Repository, supersedes objid.Set) (*Packer, error) {
	dir, err := os.MkdirTemp("", "backpak-backup-*")
	if err != nil {
		return nil, errors.Wrap(err, "creating scratch directory for backup")
	}

	pw, err := pack.NewWriter(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return &Packer{
		ctx:                ctx,
		dir:                dir,
		be:                 repo.Backend,
		pw:                 pw,
		iw:                 index.NewWriter(dir, supersedes),
		packBytesNextCheck: pack.DefaultTargetSize,
	}, nil
}

// Pack writes b to the current pack, flushing and uploading it (and
// starting a fresh one) once it's grown close enough to its target size.
// It matches tree.ChunkSink, so it's used for both Walker.Sink and
// Walker.TreeSink.
func (p *Packer) Pack(b blob.Blob) error {
	n, err := p.pw.WriteBlob(b)
	if err != nil {
		return err
	}
	p.packBytesWritten += n

	if p.packBytesWritten < p.packBytesNextCheck {
		return nil
	}

	// We've written as many (uncompressed) bytes as we wanted the pack to
	// be, but don't know how much they compressed to. Flushing the
	// compressor to check is expensive enough that we only do it once
	// we're in the right ballpark, rather than after every blob.
	compressed, err := p.pw.FlushAndSize()
	if err != nil {
		return err
	}

	if compressed >= pack.DefaultTargetSize*9/10 {
		debug.Log("backup: pack is %d bytes compressed, finishing it", compressed)
		return p.finishPack()
	}

	p.packBytesNextCheck = p.packBytesWritten + (pack.DefaultTargetSize - compressed)
	return nil
}

// finishPack finalizes the current pack, uploads it, folds its manifest
// into the running index (flushing that too if it's grown large enough),
// and starts a fresh pack.
func (p *Packer) finishPack() error {
	meta, err := p.pw.Finalize()
	if err != nil {
		return err
	}

	if err := p.upload(backend.Pack, meta.ID.String(), ".pack"); err != nil {
		return err
	}

	indexSize, err := p.iw.Insert(meta)
	if err != nil {
		return err
	}

	pw, err := pack.NewWriter(p.dir)
	if err != nil {
		return err
	}
	p.pw = pw
	p.packBytesWritten = 0
	p.packBytesNextCheck = pack.DefaultTargetSize

	if indexSize >= pack.DefaultTargetSize {
		return p.finishIndex()
	}
	return nil
}

func (p *Packer) finishIndex() error {
	id, err := p.iw.Finalize()
	if err != nil {
		return err
	}
	return p.upload(backend.Index, id.String(), ".index")
}

// upload reads the finalized file p.dir/id+ext and writes it to the
// backend under id, the way the original pipeline's uploader stage
// consumes filenames off its channel.
func (p *Packer) upload(kind backend.Kind, id, ext string) error {
	data, err := os.ReadFile(p.dir + "/" + id + ext)
	if err != nil {
		return errors.Wrapf(err, "reading finished %s%s", id, ext)
	}
	if err := p.be.Write(p.ctx, kind, id, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "uploading %s%s", id, ext)
	}
	debug.Log("backup: uploaded %s%s (%d bytes)", id, ext, len(data))
	return nil
}

// Finish flushes and uploads whatever pack and index are still open, if
// they have anything in them, then removes the scratch directory.
func (p *Packer) Finish() error {
	defer os.RemoveAll(p.dir)

	if !p.pw.Empty() {
		if err := p.finishPack(); err != nil {
			return err
		}
	} else {
		if err := p.pw.Abandon(); err != nil {
			return err
		}
	}

	if !p.iw.Empty() {
		if err := p.finishIndex(); err != nil {
			return err
		}
	}

	return nil
}

// Abandon discards whatever's been written without uploading anything, for
// a walk that failed partway through.
func (p *Packer) Abandon() {
	p.pw.Abandon()
	os.RemoveAll(p.dir)
}
