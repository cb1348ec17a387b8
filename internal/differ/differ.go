// Package differ walks two snapshots' forests in lockstep and reports, path
// by path, whether an entry was added, removed, had its contents change, had
// only its metadata change, changed type (e.g. file to symlink), or didn't
// change at all.
package differ

import (
	"path"
	"reflect"
	"sort"

	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/tree"
)

// ChangeKind tags what happened to one path between two trees.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	ContentsChanged
	MetadataChanged
	TypeChanged
	Unchanged
)

// Change is one path's outcome from Compare.
type Change struct {
	Path string
	Kind ChangeKind
	// Old and New are the nodes on either side, whichever are applicable
	// (Old is the zero Node for Added, New is the zero Node for Removed).
	Old, New tree.Node
}

// Sink receives Changes as Compare finds them. It's called for Unchanged
// paths too; callers that only care about differences should filter those
// out themselves.
type Sink func(Change)

// Compare walks tree1 (from forest1) and tree2 (from forest2), both rooted
// at basePath, calling sink for entry names present in either side. An
// added or removed entry is reported once, without descending into it; a
// directory whose subtree differs is descended into and is itself reported
// only if its metadata also changed.
func Compare(id1 objid.ID, forest1 tree.Forest, id2 objid.ID, forest2 tree.Forest, basePath string, sink Sink) {
	t1 := forest1[id1]
	t2 := forest2[id2]

	names := make(map[string]struct{}, len(t1)+len(t2))
	for n := range t1 {
		names[n] = struct{}{}
	}
	for n := range t2 {
		names[n] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		nodePath := path.Join(basePath, name)
		n1, ok1 := t1[name]
		n2, ok2 := t2[name]

		switch {
		case !ok1:
			sink(Change{Path: nodePath, Kind: Added, New: n2})
		case !ok2:
			sink(Change{Path: nodePath, Kind: Removed, Old: n1})
		default:
			compareNodes(n1, forest1, n2, forest2, nodePath, sink)
		}
	}
}

func compareNodes(n1 tree.Node, forest1 tree.Forest, n2 tree.Node, forest2 tree.Forest, nodePath string, sink Sink) {
	if n1.Type != n2.Type {
		sink(Change{Path: nodePath, Kind: TypeChanged, Old: n1, New: n2})
		return
	}

	switch n1.Type {
	case tree.Directory:
		if n1.Subtree != n2.Subtree {
			Compare(n1.Subtree, forest1, n2.Subtree, forest2, nodePath, sink)
		}
		if !reflect.DeepEqual(n1.Metadata, n2.Metadata) {
			sink(Change{Path: nodePath, Kind: MetadataChanged, Old: n1, New: n2})
		} else if n1.Subtree == n2.Subtree {
			sink(Change{Path: nodePath, Kind: Unchanged, Old: n1, New: n2})
		}

	default: // File, Symlink
		if !reflect.DeepEqual(n1.Chunks, n2.Chunks) || n1.Target != n2.Target {
			sink(Change{Path: nodePath, Kind: ContentsChanged, Old: n1, New: n2})
		} else if !reflect.DeepEqual(n1.Metadata, n2.Metadata) {
			sink(Change{Path: nodePath, Kind: MetadataChanged, Old: n1, New: n2})
		} else {
			sink(Change{Path: nodePath, Kind: Unchanged, Old: n1, New: n2})
		}
	}
}
