package pack

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/debug"
)

// Writer accumulates blobs into one pack file, streaming them through a
// zstd encoder into a temp file until Finalize renames it to its final,
// content-addressed name.
//
// A Writer isn't safe for concurrent use; the packer pipeline owns exactly
// one Writer at a time.
type Writer struct {
	dir      string
	tempPath string
	fh       *os.File
	zw       *zstd.Encoder
	manifest Manifest
}

// NewWriter creates a new temp pack file under dir and readies it for
// writing blobs.
func NewWriter(dir string) (*Writer, error) {
	fh, err := os.CreateTemp(dir, "*.pack.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp pack file")
	}

	if _, err := fh.WriteString(Magic); err != nil {
		fh.Close()
		os.Remove(fh.Name())
		return nil, errors.Wrap(err, "writing pack magic")
	}

	zw, err := zstd.NewWriter(fh, zstd.WithEncoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		fh.Close()
		os.Remove(fh.Name())
		return nil, errors.Wrap(err, "starting pack compressor")
	}

	return &Writer{dir: dir, tempPath: fh.Name(), fh: fh, zw: zw}, nil
}

// WriteBlob appends b's bytes to the blob stream and records it in the
// manifest, returning the number of uncompressed bytes written.
func (w *Writer) WriteBlob(b blob.Blob) (uint64, error) {
	data := b.Contents.Bytes()
	if len(data) > math.MaxUint32 {
		return 0, errors.Errorf("blob %v is %d bytes, exceeding the pack format's u32 length field", b.ID, len(data))
	}

	if _, err := w.zw.Write(data); err != nil {
		return 0, errors.Wrap(err, "writing blob to pack")
	}

	var t Type
	switch b.Kind {
	case blob.Chunk:
		t = Chunk
	case blob.Tree:
		t = Tree
	default:
		return 0, errors.Errorf("unknown blob kind %v", b.Kind)
	}

	w.manifest = append(w.manifest, ManifestEntry{Type: t, Length: uint32(len(data)), ID: b.ID})
	return uint64(len(data)), nil
}

// FlushAndSize flushes the compressor and returns the pack's size on disk
// so far. Flushing too often hurts the compression ratio, so callers
// should only do this when deciding whether a pack is close to its target
// size.
func (w *Writer) FlushAndSize() (uint64, error) {
	if err := w.zw.Flush(); err != nil {
		return 0, errors.Wrap(err, "flushing pack compressor")
	}
	fi, err := w.fh.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat'ing pack")
	}
	return uint64(fi.Size()), nil
}

// Empty reports whether no blobs have been written yet.
func (w *Writer) Empty() bool {
	return len(w.manifest) == 0
}

// Abandon discards the temp file without finalizing it, for a pipeline
// shutdown that never wrote any blobs.
func (w *Writer) Abandon() error {
	w.zw.Close()
	w.fh.Close()
	return os.Remove(w.tempPath)
}

// Finalize closes the blob stream, appends the compressed manifest and its
// length trailer, fsyncs, and renames the temp file to `<pack-id>.pack`.
func (w *Writer) Finalize() (Metadata, error) {
	_, compressedManifest, id, err := encodeManifest(w.manifest)
	if err != nil {
		w.fh.Close()
		os.Remove(w.tempPath)
		return Metadata{}, err
	}

	if err := w.zw.Close(); err != nil {
		w.fh.Close()
		os.Remove(w.tempPath)
		return Metadata{}, errors.Wrap(err, "closing pack blob stream")
	}

	if _, err := w.fh.Write(compressedManifest); err != nil {
		w.fh.Close()
		os.Remove(w.tempPath)
		return Metadata{}, errors.Wrap(err, "writing pack manifest")
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressedManifest)))
	if _, err := w.fh.Write(lenBuf[:]); err != nil {
		w.fh.Close()
		os.Remove(w.tempPath)
		return Metadata{}, errors.Wrap(err, "writing pack manifest length")
	}

	if err := w.fh.Sync(); err != nil {
		w.fh.Close()
		return Metadata{}, errors.Wrap(err, "syncing pack file")
	}
	if err := w.fh.Close(); err != nil {
		return Metadata{}, errors.Wrap(err, "closing pack file")
	}

	finalPath := filepath.Join(w.dir, id.String()+".pack")
	if err := os.Rename(w.tempPath, finalPath); err != nil {
		return Metadata{}, errors.Wrapf(err, "renaming pack to %s", finalPath)
	}

	debug.Log("pack %s finished with %d blobs", id, len(w.manifest))

	return Metadata{ID: id, Manifest: w.manifest}, nil
}
