// Package blob defines Blob, the fundamental unit of deduplication: either
// a chunk of a file or the serialized form of a tree.
package blob

import (
	"github.com/mrkline/backpak/internal/objid"
)

// Type distinguishes a chunk of file content from a serialized tree.
type Type int

const (
	// Chunk is a sub-range of a file's byte content.
	Chunk Type = iota
	// Tree is the serialized form of a tree.Tree object.
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

// Contents holds a blob's bytes, either as an owned buffer or a
// span into a loaded file shared by every chunk produced
// from that file. Chunks read back out of an existing pack (e.g. while
// repacking) are always buffers; chunks fresh off the chunker are spans.
type Contents struct {
	buf    []byte
	span   FileSpan
	isSpan bool
}

// NewBufferContents wraps an owned buffer.
func NewBufferContents(buf []byte) Contents {
	return Contents{buf: buf}
}

// NewSpanContents wraps a FileSpan.
func NewSpanContents(s FileSpan) Contents {
	return Contents{span: s, isSpan: true}
}

// Bytes returns the contents as a byte slice.
func (c Contents) Bytes() []byte {
	if c.isSpan {
		return c.span.Bytes()
	}
	return c.buf
}

// Blob is the fundamental unit of backup: either a chunk of a file or a
// serialized tree, with the ID those bytes hash to.
type Blob struct {
	Contents Contents
	ID       objid.ID
	Kind     Type
}

// Len returns the length of the blob's bytes.
func (b Blob) Len() int {
	return len(b.Contents.Bytes())
}
