package index

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
)

// tempName is the fixed name an in-progress index is rewritten under. A
// fixed name (rather than a fresh temp file per write) means a crashed
// backup leaves behind exactly one recoverable, complete record of every
// pack finished so far.
const tempName = "backpak-wip.index"

// Writer accumulates pack manifests into a running Index, rewriting a temp
// index file in full on every insert. Once the temp file's compressed size
// crosses a target, the caller calls Finalize to rename it to its
// content-addressed name and start a fresh Index.
type Writer struct {
	dir       string
	index     Index
	pendingID objid.ID
}

// NewWriter starts a fresh index under dir. supersedes, if non-empty,
// stamps every index this writer finalizes with the set of index ids it
// replaces.
func NewWriter(dir string, supersedes objid.Set) *Writer {
	idx := New()
	if supersedes != nil {
		idx.Supersedes = supersedes
	}
	return &Writer{dir: dir, index: idx}
}

// Insert adds a pack's manifest to the running index and rewrites the temp
// index file, returning its compressed size on disk.
func (w *Writer) Insert(meta pack.Metadata) (uint64, error) {
	if _, dup := w.index.Packs[meta.ID]; dup {
		return 0, errors.Errorf("duplicate pack %s received by indexer", meta.ID)
	}
	w.index.Packs[meta.ID] = meta.Manifest
	return w.rewriteTemp()
}

func (w *Writer) rewriteTemp() (uint64, error) {
	path := filepath.Join(w.dir, tempName)
	fh, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(err, "creating temp index file")
	}
	defer fh.Close()

	id, err := Encode(fh, w.index)
	if err != nil {
		return 0, err
	}
	w.pendingID = id

	if err := fh.Sync(); err != nil {
		return 0, errors.Wrap(err, "syncing temp index file")
	}
	fi, err := fh.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat'ing temp index file")
	}
	return uint64(fi.Size()), nil
}

// Empty reports whether no packs have been inserted yet.
func (w *Writer) Empty() bool {
	return len(w.index.Packs) == 0
}

// Finalize renames the temp index to `<index-id>.index` and resets the
// writer to accumulate a fresh Index (keeping the same Supersedes set).
func (w *Writer) Finalize() (objid.ID, error) {
	if w.Empty() {
		return objid.Zero, errors.New("finalizing an index with no packs")
	}

	id := w.pendingID
	finalPath := filepath.Join(w.dir, id.String()+".index")
	if err := os.Rename(filepath.Join(w.dir, tempName), finalPath); err != nil {
		return objid.Zero, errors.Wrapf(err, "renaming index to %s", finalPath)
	}

	debug.Log("index %s finished with %d packs", id, len(w.index.Packs))

	supersedes := w.index.Supersedes
	w.index = New()
	w.index.Supersedes = supersedes
	w.pendingID = objid.Zero

	return id, nil
}
