package backend

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/debug"
)

// Filesystem is a Backend rooted at a local directory. Packs are sharded
// two hex digits deep (packs/<hh>/<id>.pack) to keep any one directory
// from holding an unwieldy number of entries; indexes, snapshots, and the
// repository config are not, since there are orders of magnitude fewer of
// them.
type Filesystem struct {
	root string
}

// NewFilesystem opens (without creating) a filesystem backend rooted at
// root.
func NewFilesystem(root string) (*Filesystem, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "opening filesystem backend at %s", root)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}
	return &Filesystem{root: root}, nil
}

// InitFilesystem creates a new, empty repository layout at root.
func InitFilesystem(root string) (*Filesystem, error) {
	dirs := []string{
		root,
		filepath.Join(root, "packs"),
		filepath.Join(root, "indexes"),
		filepath.Join(root, "snapshots"),
		filepath.Join(root, "tmp"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return nil, errors.Wrapf(err, "creating %s", d)
		}
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) dirFor(kind Kind, name string) string {
	switch kind {
	case Pack:
		shard := "00"
		if len(name) >= 2 {
			shard = name[:2]
		}
		return filepath.Join(f.root, "packs", shard)
	case Index:
		return filepath.Join(f.root, "indexes")
	case Snapshot:
		return filepath.Join(f.root, "snapshots")
	case Config:
		return f.root
	default:
		panic(fmt.Sprintf("unknown backend kind %v", kind))
	}
}

func extensionFor(kind Kind) string {
	switch kind {
	case Pack:
		return ".pack"
	case Index:
		return ".index"
	case Snapshot:
		return ".snapshot"
	default:
		return ""
	}
}

func (f *Filesystem) pathFor(kind Kind, name string) string {
	if kind == Config {
		return filepath.Join(f.root, "config")
	}
	return filepath.Join(f.dirFor(kind, name), name+extensionFor(kind))
}

func (f *Filesystem) Read(ctx context.Context, kind Kind, name string) (io.ReadCloser, error) {
	fh, err := os.Open(f.pathFor(kind, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, errors.Wrapf(err, "reading %s %s", kind, name)
	}
	return fh, nil
}

// Write stores r under (kind, name) by writing to a temp file in the same
// directory and renaming it into place, so a reader never observes a
// partially-written object and a crash mid-write leaves only an orphaned
// temp file rather than a corrupt one.
func (f *Filesystem) Write(ctx context.Context, kind Kind, name string, r io.Reader) error {
	dir := f.dirFor(kind, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()

	h := f.Hasher()
	if _, err := io.Copy(tmp, io.TeeReader(r, h)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s %s", kind, name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp file")
	}

	if err := verifyWritten(tmpName, f.Hasher(), h.Sum(nil)); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "verifying %s %s after write", kind, name)
	}

	final := f.pathFor(kind, name)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming into place %s %s", kind, name)
	}
	// Packs and indexes are immutable once written; guard against
	// accidental modification.
	if kind == Pack || kind == Index || kind == Snapshot {
		os.Chmod(final, 0400)
	}

	debug.Log("wrote %s %s (%d bytes)", kind, name, mustSize(final))
	return nil
}

// verifyWritten re-reads path and checksums it with h, comparing against
// want (the checksum taken while streaming the original write). Catches
// a write silently truncated or corrupted between the copy and the
// fsync - cheap enough, with a non-cryptographic hash, to do on every
// write rather than only when something's already suspected wrong.
func verifyWritten(path string, h hash.Hash, want []byte) error {
	fh, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "reopening for verification")
	}
	defer fh.Close()

	if _, err := io.Copy(h, fh); err != nil {
		return errors.Wrap(err, "reading back for verification")
	}
	if got := h.Sum(nil); !bytes.Equal(got, want) {
		return errors.Errorf("checksum mismatch: wrote %x, read back %x", want, got)
	}
	return nil
}

// Hasher returns a new xxhash digest: fast, non-cryptographic, and only
// ever used to catch accidental corruption in the write path above, never
// for content addressing (ObjectId's SHA-224 owns that).
func (f *Filesystem) Hasher() hash.Hash {
	return xxhash.New()
}

func mustSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

func (f *Filesystem) Remove(ctx context.Context, kind Kind, name string) error {
	err := os.Remove(f.pathFor(kind, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s %s", kind, name)
	}
	return nil
}

func (f *Filesystem) List(ctx context.Context, kind Kind, fn func(Entry) error) error {
	var pattern string
	if kind == Pack {
		pattern = filepath.Join(f.root, "packs", "*", "*"+extensionFor(kind))
	} else {
		pattern = filepath.Join(f.dirFor(kind, ""), "*"+extensionFor(kind))
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "listing backend")
	}

	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		base := filepath.Base(m)
		name := base[:len(base)-len(extensionFor(kind))]
		if err := fn(Entry{Name: name, Size: fi.Size()}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filesystem) Probe(ctx context.Context, kind Kind, name string) (bool, error) {
	_, err := os.Stat(f.pathFor(kind, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "probing %s %s", kind, name)
}

func (f *Filesystem) Close() error {
	return nil
}
