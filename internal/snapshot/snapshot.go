// Package snapshot defines the root object of one backup: a point in time,
// the paths backed up, and the root tree id that reconstructs them.
package snapshot

import (
	"io"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/objid"
)

// Magic is the 8-byte header every snapshot file starts with.
const Magic = "MKBAKSNP"

// Snapshot is one backup: when it was taken, who took it, what it's
// tagged with, which paths it covers, and the tree it backed them up into.
type Snapshot struct {
	Time   time.Time `cbor:"time"`
	Author string    `cbor:"author"`
	Tags   []string  `cbor:"tags"`
	Paths  []string  `cbor:"paths"`
	Tree   objid.ID  `cbor:"tree"`
}

// New builds a Snapshot, sorting tags and paths so two snapshots covering
// the same inputs serialize identically regardless of argument order.
func New(author string, tags, paths []string, tree objid.ID) Snapshot {
	t := append([]string(nil), tags...)
	p := append([]string(nil), paths...)
	sort.Strings(t)
	sort.Strings(p)
	return Snapshot{
		Time:   time.Now(),
		Author: author,
		Tags:   t,
		Paths:  p,
		Tree:   tree,
	}
}

// Times are written as RFC 3339 text with nanoseconds and the UTC offset,
// so two snapshots taken within the same second still differ.
var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode writes a snapshot's on-disk representation (magic + CBOR,
// uncompressed - snapshots are tiny) to w, hashing it along the way so the
// caller learns its id without a second pass.
func Encode(w io.Writer, s Snapshot) (objid.ID, error) {
	if _, err := io.WriteString(w, Magic); err != nil {
		return objid.Zero, errors.Wrap(err, "writing snapshot magic")
	}
	hw := objid.NewWriter(w)
	if err := encMode.NewEncoder(hw).Encode(s); err != nil {
		return objid.Zero, errors.Wrap(err, "encoding snapshot")
	}
	return hw.Sum(), nil
}

// Decode reads a snapshot's magic and CBOR body.
func Decode(r io.Reader) (Snapshot, error) {
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Snapshot{}, errors.Wrap(err, "reading snapshot magic")
	}
	if string(magic[:]) != Magic {
		return Snapshot{}, errors.Errorf("bad snapshot magic: %q", magic[:])
	}

	var s Snapshot
	if err := cbor.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, errors.Wrap(err, "decoding snapshot")
	}
	return s, nil
}

// HasTag reports whether s is tagged with tag.
func (s Snapshot) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
