// Package tree models the directory structure backed up: a Tree maps entry
// names to Nodes, and a Forest is the transitive closure of every Tree
// reachable from a snapshot's root. Both are serialized as canonical CBOR so
// two equal trees always hash to the same id.
package tree

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/objid"
)

// encMode produces canonical CBOR: map keys are sorted into the order
// RFC 7049 §3.9 specifies (shortest encoding first, then bytewise), which
// makes the encoding of a given Tree value deterministic across runs and
// platforms regardless of map iteration order. Times are written as RFC 3339
// text with nanoseconds, so a decoded mtime compares equal to the one the
// filesystem reports for an unchanged file.
var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err) // fixed options; can't fail
	}
	return em
}()

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Tree is a directory's entries, keyed by entry name (a single path
// component, not a full path).
type Tree map[string]Node

// Insert adds name -> node, returning an error if name is already present -
// trees should never have two entries for the same path component.
func (t Tree) Insert(name string, n Node) error {
	if _, dup := t[name]; dup {
		return errors.Errorf("duplicate tree entry %q", name)
	}
	t[name] = n
	return nil
}

// Serialize returns the canonical CBOR encoding of t.
func (t Tree) Serialize() ([]byte, error) {
	b, err := encMode.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "encoding tree")
	}
	return b, nil
}

// SerializeAndHash returns t's canonical encoding and the blob it hashes to.
func (t Tree) SerializeAndHash() ([]byte, blob.Blob, error) {
	b, err := t.Serialize()
	if err != nil {
		return nil, blob.Blob{}, err
	}
	id := objid.FromData(b)
	return b, blob.Blob{
		Contents: blob.NewBufferContents(b),
		ID:       id,
		Kind:     blob.Tree,
	}, nil
}

// Deserialize parses a Tree from its canonical CBOR encoding.
func Deserialize(b []byte) (Tree, error) {
	var t Tree
	if err := decMode.Unmarshal(b, &t); err != nil {
		return nil, errors.Wrap(err, "decoding tree")
	}
	return t, nil
}

// Forest is the set of every Tree reachable from one or more roots, keyed
// by the id each Tree serializes to.
type Forest map[objid.ID]Tree

// Merge adds every tree of other into f, keeping f's copy on collision
// (trees that hash the same are, by construction, identical).
func (f Forest) Merge(other Forest) {
	for id, t := range other {
		if _, ok := f[id]; !ok {
			f[id] = t
		}
	}
}

// Chunks returns every file chunk id referenced anywhere in f. Used by
// prune to find which chunk blobs are still reachable from a snapshot,
// alongside f's own keys (every reachable tree blob).
func (f Forest) Chunks() objid.Set {
	chunks := make(objid.Set)
	for _, t := range f {
		for _, n := range t {
			if n.Type == File {
				for _, c := range n.Chunks {
					chunks.Insert(c)
				}
			}
		}
	}
	return chunks
}
