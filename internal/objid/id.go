// Package objid implements the content-addressing identity used throughout
// backpak: a 28-byte SHA-224 digest that names every blob, pack, index, and
// snapshot.
package objid

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
)

// Length is the size in bytes of an ID (SHA-224).
const Length = 28

// ShortLength is the number of hex characters used for a short, human name.
const ShortLength = 8

// ID is the identity of a content-addressed object: the SHA-224 of its
// uncompressed bytes.
type ID [Length]byte

// Zero is the all-zero ID, used as a sentinel for "no object".
var Zero ID

// FromData hashes d and returns its ID.
func FromData(d []byte) ID {
	sum := sha256.Sum224(d)
	var id ID
	copy(id[:], sum[:])
	return id
}

// Parse decodes a hex string into an ID.
func Parse(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "invalid hex in object id")
	}
	if len(b) != Length {
		return id, errors.Errorf("invalid object id length %d, want %d", len(b), Length)
	}
	copy(id[:], b)
	return id, nil
}

// String renders the ID as lowercase hex.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short renders the first ShortLength hex characters of the ID, for
// human-facing display.
func (id ID) Short() string {
	return id.String()[:ShortLength]
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool {
	return id == Zero
}

// Equal reports whether two IDs are identical.
func (id ID) Equal(other ID) bool {
	return id == other
}

// Compare orders IDs lexicographically by their bytes, for use as a
// BTree-style sort key (e.g. in deterministic CBOR map encoding).
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as hex in
// any text-based encoding (JSON, TOML) that asks for it.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// List is a sortable slice of IDs.
type List []ID

func (l List) Len() int           { return len(l) }
func (l List) Less(i, j int) bool { return Compare(l[i], l[j]) < 0 }
func (l List) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

// Sort sorts the list in place and returns it.
func (l List) Sort() List {
	sort.Sort(l)
	return l
}

// Set is an unordered set of IDs.
type Set map[ID]struct{}

// NewSet builds a Set from the given IDs.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Insert adds id to the set, returning true if it was not already present.
func (s Set) Insert(id ID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports whether id is in the set.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// List returns the set's members as a slice, in no particular order.
func (s Set) List() List {
	l := make(List, 0, len(s))
	for id := range s {
		l = append(l, id)
	}
	return l
}
