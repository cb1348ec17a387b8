// Package index implements the index file format: a mapping from pack id
// to pack manifest, plus the set of prior index ids it supersedes, so a
// newer index can atomically replace older ones (e.g. after a prune).
package index

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
)

// Magic is the 8-byte header every index file starts with.
const Magic = "MKBAKIDX"

// Index maps pack id to pack manifest. Supersedes names the index ids this
// one replaces; a consumer building a master index must discard any index
// whose id appears in another index's Supersedes set.
type Index struct {
	Supersedes objid.Set               `cbor:"supersedes"`
	Packs      map[objid.ID]pack.Manifest `cbor:"packs"`
}

// New returns an empty Index.
func New() Index {
	return Index{
		Supersedes: make(objid.Set),
		Packs:      make(map[objid.ID]pack.Manifest),
	}
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode writes idx's on-disk representation (magic, then zstd-compressed
// canonical CBOR) to w, streaming through a hashing writer so the caller
// can learn idx's id (the SHA-224 of the uncompressed CBOR body) without a
// second pass.
func Encode(w io.Writer, idx Index) (objid.ID, error) {
	if _, err := io.WriteString(w, Magic); err != nil {
		return objid.Zero, errors.Wrap(err, "writing index magic")
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return objid.Zero, errors.Wrap(err, "starting index compressor")
	}

	hw := objid.NewWriter(zw)
	if err := encMode.NewEncoder(hw).Encode(idx); err != nil {
		zw.Close()
		return objid.Zero, errors.Wrap(err, "encoding index")
	}
	id := hw.Sum()

	if err := zw.Close(); err != nil {
		return objid.Zero, errors.Wrap(err, "closing index compressor")
	}

	return id, nil
}

// Decode reads an index file's magic and zstd-compressed CBOR body.
func Decode(r io.Reader) (Index, error) {
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Index{}, errors.Wrap(err, "reading index magic")
	}
	if string(magic[:]) != Magic {
		return Index{}, errors.Errorf("bad index magic: %q", magic[:])
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return Index{}, errors.Wrap(err, "decompressing index")
	}
	defer zr.Close()

	var idx Index
	if err := cbor.NewDecoder(zr).Decode(&idx); err != nil {
		return Index{}, errors.Wrap(err, "decoding index")
	}
	if idx.Supersedes == nil {
		idx.Supersedes = make(objid.Set)
	}
	if idx.Packs == nil {
		idx.Packs = make(map[objid.ID]pack.Manifest)
	}
	return idx, nil
}
