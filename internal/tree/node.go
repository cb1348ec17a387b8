package tree

import "github.com/mrkline/backpak/internal/objid"

// NodeType tags which variant of Node.Contents is populated.
type NodeType int

const (
	File NodeType = iota
	Symlink
	Directory
)

func (t NodeType) String() string {
	switch t {
	case File:
		return "file"
	case Symlink:
		return "symlink"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// Node is one directory entry: a file, symlink, or subdirectory, plus the
// metadata needed to decide later whether it has changed.
//
// Exactly one of Chunks, Target, or Subtree is meaningful, selected by Type.
// They're kept as separate omitempty fields rather than a tagged union so
// the CBOR encoding stays a flat map instead of nesting a discriminated
// payload, matching the rest of the wire format's preference for flat
// structures.
type Node struct {
	Type     NodeType
	Metadata Metadata

	Chunks  []objid.ID `cbor:"chunks,omitempty"`
	Target  string     `cbor:"target,omitempty"`
	Subtree objid.ID   `cbor:"subtree,omitempty"`
}

// NewFileNode builds a Node for a regular file from its ordered chunk ids.
func NewFileNode(meta Metadata, chunks []objid.ID) Node {
	return Node{Type: File, Metadata: meta, Chunks: chunks}
}

// NewSymlinkNode builds a Node for a symlink.
func NewSymlinkNode(meta Metadata, target string) Node {
	return Node{Type: Symlink, Metadata: meta, Target: target}
}

// NewDirectoryNode builds a Node pointing at a subtree blob.
func NewDirectoryNode(meta Metadata, subtree objid.ID) Node {
	return Node{Type: Directory, Metadata: meta, Subtree: subtree}
}
