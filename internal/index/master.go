package index

import (
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
)

// Master is the union of every non-superseded index: every pack the
// repository currently considers live, and a fast lookup from blob id to
// the pack that holds it.
type Master struct {
	Packs map[objid.ID]pack.Manifest
	// blobPacks maps a blob id to the id of the pack that holds it. If a
	// blob somehow ends up in more than one live pack, the pack observed
	// first (in the order indexes were merged) wins; see BuildMaster.
	blobPacks map[objid.ID]objid.ID
}

// BuildMaster merges a repository's indexes into one master view.
//
// Indexes are first filtered: any index whose id is named in another
// index's Supersedes set is dropped, since a newer index already subsumes
// whatever it replaced. The remaining indexes' packs are unioned; a pack id
// appearing in more than one surviving index is accepted once (repeats are
// logged, not errors - prune can legitimately emit an index that restates
// packs a concurrent backup's index also recorded before either was
// superseded).
func BuildMaster(indexes map[objid.ID]Index) Master {
	superseded := make(objid.Set)
	for _, idx := range indexes {
		for id := range idx.Supersedes {
			superseded.Insert(id)
		}
	}

	m := Master{
		Packs:     make(map[objid.ID]pack.Manifest),
		blobPacks: make(map[objid.ID]objid.ID),
	}

	for indexID, idx := range indexes {
		if superseded.Has(indexID) {
			debug.Log("index %s is superseded, skipping", indexID)
			continue
		}
		for packID, manifest := range idx.Packs {
			if _, dup := m.Packs[packID]; dup {
				debug.Log("pack %s listed in more than one live index", packID)
			} else {
				m.Packs[packID] = manifest
			}
			for _, entry := range manifest {
				if _, seen := m.blobPacks[entry.ID]; !seen {
					m.blobPacks[entry.ID] = packID
				}
			}
		}
	}

	return m
}

// PackOf returns the id of the pack holding blob id, if any.
func (m Master) PackOf(id objid.ID) (objid.ID, bool) {
	packID, ok := m.blobPacks[id]
	return packID, ok
}

// HasBlob reports whether a blob is reachable through this master index.
func (m Master) HasBlob(id objid.ID) bool {
	_, ok := m.blobPacks[id]
	return ok
}

// NumBlobs returns the number of distinct blobs tracked across every live
// pack.
func (m Master) NumBlobs() int {
	return len(m.blobPacks)
}
