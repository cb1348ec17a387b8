package pack

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
)

// ManifestFromReader seeks to a pack's trailer, reads the manifest length,
// seeks back to the manifest's start, and decodes it - all without reading
// the (potentially large) blob stream that precedes it.
func ManifestFromReader(r io.ReadSeeker) (Manifest, error) {
	if err := checkMagic(r); err != nil {
		return nil, err
	}

	if _, err := r.Seek(-4, io.SeekEnd); err != nil {
		return nil, errors.Wrap(err, "seeking to pack manifest length")
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "reading pack manifest length")
	}
	manifestLen := int64(uint32(lenBuf[0])<<24 | uint32(lenBuf[1])<<16 | uint32(lenBuf[2])<<8 | uint32(lenBuf[3]))

	if _, err := r.Seek(-manifestLen-4, io.SeekEnd); err != nil {
		return nil, errors.Wrap(err, "seeking to pack manifest")
	}

	compressed := make([]byte, manifestLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, errors.Wrap(err, "reading pack manifest")
	}

	return decodeManifest(compressed)
}

// Verify re-hashes every blob in the pack's blob stream against the given
// manifest (normally the copy from the index, so a corrupted on-disk
// manifest can't mask a corrupted blob), failing on the first mismatch.
func Verify(r io.Reader, manifest Manifest) error {
	if err := checkMagic(r); err != nil {
		return err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "decompressing pack blob stream")
	}
	defer zr.Close()

	for _, entry := range manifest {
		hr := objid.NewReader(io.LimitReader(zr, int64(entry.Length)))
		if _, err := io.Copy(io.Discard, hr); err != nil {
			return errors.Wrapf(err, "reading blob %s from pack", entry.ID)
		}
		if got := hr.Sum(); got != entry.ID {
			return errors.Errorf("blob claims to be %s but hashes to %s", entry.ID, got)
		}
		debug.Log("blob %s matches its id", entry.ID)
	}

	return nil
}

// ExtractBlob pulls a single blob's bytes out of a pack's blob stream,
// given the manifest (from the index) describing it.
func ExtractBlob(r io.Reader, id objid.ID, manifest Manifest) ([]byte, error) {
	if err := checkMagic(r); err != nil {
		return nil, err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing pack blob stream")
	}
	defer zr.Close()

	for _, entry := range manifest {
		if entry.ID != id {
			if _, err := io.Copy(io.Discard, io.LimitReader(zr, int64(entry.Length))); err != nil {
				return nil, errors.Wrapf(err, "skipping blob %s in pack", entry.ID)
			}
			continue
		}

		hr := objid.NewReader(io.LimitReader(zr, int64(entry.Length)))
		data, err := io.ReadAll(hr)
		if err != nil {
			return nil, errors.Wrapf(err, "reading blob %s from pack", id)
		}
		if got := hr.Sum(); got != id {
			return nil, errors.Errorf("blob claims to be %s but hashes to %s", id, got)
		}
		return data, nil
	}

	return nil, errors.Errorf("blob %s not found in pack manifest", id)
}
