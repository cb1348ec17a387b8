// Package pack implements the on-disk pack file format: a zstd-compressed
// stream of blob bytes followed by a separately zstd-compressed CBOR
// manifest describing them, closed out with a big-endian length trailer so
// the manifest alone can be read with one seek.
package pack

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/objid"
)

// Magic is the 8-byte header every pack file starts with.
const Magic = "MKBAKPAK"

// DefaultTargetSize is the uncompressed byte count the packer aims for
// before finalizing a pack. It applies to every pack; a pack_size in the
// repository config is recorded but not used by the packer.
const DefaultTargetSize = 100 * 1024 * 1024 // 100 MiB

// Type tags a manifest entry as a chunk of file content or a serialized
// tree.
type Type int

const (
	Chunk Type = iota
	Tree
)

func (t Type) String() string {
	switch t {
	case Chunk:
		return "chunk"
	case Tree:
		return "tree"
	default:
		return "unknown"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	switch string(b) {
	case "chunk":
		*t = Chunk
	case "tree":
		*t = Tree
	default:
		return errors.Errorf("unknown blob type %q", b)
	}
	return nil
}

// ManifestEntry describes one blob packed into a pack file: its type,
// uncompressed byte length, and id.
type ManifestEntry struct {
	Type   Type     `cbor:"type"`
	Length uint32   `cbor:"length"`
	ID     objid.ID `cbor:"id"`
}

// Manifest is the ordered list of blobs a pack file contains, in the order
// they were written to the blob stream.
type Manifest []ManifestEntry

// Metadata is what the packer hands to the indexer once a pack is
// finalized: its id and manifest.
type Metadata struct {
	ID       objid.ID
	Manifest Manifest
}

var manifestEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// manifestZstd is a reusable zero-state encoder/decoder pair for the small,
// separately-compressed manifest blob at the end of each pack. Unlike the
// pack's blob stream, the manifest is compressed in one shot rather than
// streamed.
var manifestZstdEncoder, _ = zstd.NewWriter(nil)
var manifestZstdDecoder, _ = zstd.NewReader(nil)

func encodeManifest(m Manifest) (cborBytes, compressed []byte, id objid.ID, err error) {
	cborBytes, err = manifestEncMode.Marshal(m)
	if err != nil {
		return nil, nil, objid.Zero, errors.Wrap(err, "encoding pack manifest")
	}
	id = objid.FromData(cborBytes)
	compressed = manifestZstdEncoder.EncodeAll(cborBytes, nil)
	return cborBytes, compressed, id, nil
}

func decodeManifest(compressed []byte) (Manifest, error) {
	cborBytes, err := manifestZstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing pack manifest")
	}
	var m Manifest
	if err := cbor.Unmarshal(cborBytes, &m); err != nil {
		return nil, errors.Wrap(err, "decoding pack manifest")
	}
	return m, nil
}

// checkMagic reads and validates the 8-byte pack header.
func checkMagic(r io.Reader) error {
	var buf [len(Magic)]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return errors.Wrap(err, "reading pack magic")
	}
	if string(buf[:]) != Magic {
		return errors.Errorf("bad pack magic: %q", buf[:])
	}
	return nil
}
