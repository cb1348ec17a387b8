package objid

import (
	"crypto/sha256"
	"hash"
	"io"
)

// HashingReader wraps an io.Reader, feeding every byte read through a
// SHA-224 digest so the caller can verify content against an expected ID
// once the read is drained.
type HashingReader struct {
	r io.Reader
	h hash.Hash
}

// NewReader wraps r, hashing everything that passes through Read.
func NewReader(r io.Reader) *HashingReader {
	h := sha256.New224()
	return &HashingReader{r: io.TeeReader(r, h), h: h}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	return hr.r.Read(p)
}

// Sum returns the ID of everything read so far.
func (hr *HashingReader) Sum() ID {
	var id ID
	copy(id[:], hr.h.Sum(nil))
	return id
}

// HashingWriter wraps an io.Writer, feeding every byte written through a
// SHA-224 digest.
type HashingWriter struct {
	w io.Writer
	h hash.Hash
}

// NewWriter wraps w, hashing everything that passes through Write.
func NewWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w, h: sha256.New224()}
}

// Write implements io.Writer.
func (hw *HashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		hw.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the ID of everything written so far.
func (hw *HashingWriter) Sum() ID {
	var id ID
	copy(id[:], hw.h.Sum(nil))
	return id
}
