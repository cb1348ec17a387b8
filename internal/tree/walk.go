package tree

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/chunker"
	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
)

// ChunkSink receives every blob produced while walking: a file's chunks as
// they're cut, and a directory's Tree once every entry beneath it has been
// visited.
type ChunkSink func(blob.Blob) error

// Walker builds a Forest from the filesystem, reusing a previous backup's
// chunks for files whose size and modification time haven't changed.
type Walker struct {
	// PreviousForest is consulted to find a file or directory's previous
	// Node. Leave nil for a backup with no parent to diff against.
	PreviousForest Forest
	// Sink, if set, is called once per chunk cut from a changed file.
	Sink ChunkSink
	// TreeSink, if set, is called once per Tree as soon as it's been
	// serialized, rather than making the caller wait for the whole walk
	// to finish and iterate the returned Forest. Mirrors the chunk/tree
	// split of the backup pipeline this is ported from.
	TreeSink ChunkSink
	// Packed, if set, gates both Sink and TreeSink: a blob is only handed
	// to its sink the first time Packed(id) returns true for it. Pass a
	// closure backed by the repository's master index (plus a set for
	// ids already sent this walk) so chunks and trees already on the
	// backend aren't packed again.
	Packed func(objid.ID) bool
	// Skip, if set, is called with each path before it's walked; a true
	// result leaves the path (and, for a directory, everything beneath it)
	// out of the resulting Tree entirely.
	Skip func(path string) bool
}

// wantPack reports whether id should be handed to a sink: true if there's
// no dedup func, or if the func says this is the first time id's been seen.
func (w *Walker) wantPack(id objid.ID) bool {
	return w.Packed == nil || w.Packed(id)
}

// Walk walks the given root paths and returns the id of the Tree built from
// them plus every (sub)Tree reachable from it. previousTree is the root of
// the previous backup's tree, if any, used to look up unchanged files in
// PreviousForest.
func (w *Walker) Walk(paths []string, previousTree *objid.ID) (objid.ID, Forest, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	forest := make(Forest)

	var prevTree Tree
	if previousTree != nil {
		prevTree = w.PreviousForest[*previousTree]
	}

	root, err := w.walkPaths(sorted, prevTree, forest)
	if err != nil {
		return objid.Zero, nil, err
	}

	_, b, err := root.SerializeAndHash()
	if err != nil {
		return objid.Zero, nil, err
	}
	forest[b.ID] = root

	if w.TreeSink != nil && w.wantPack(b.ID) {
		if err := w.TreeSink(b); err != nil {
			return objid.Zero, nil, errors.Wrap(err, "packing root tree")
		}
	}

	return b.ID, forest, nil
}

// walkPaths builds the Tree of entries for one directory's (or the
// snapshot's root's) immediate paths, recursing into subdirectories and
// merging every subtree it hashes into forest.
func (w *Walker) walkPaths(paths []string, prevTree Tree, forest Forest) (Tree, error) {
	t := make(Tree, len(paths))

	for _, p := range paths {
		if w.Skip != nil && w.Skip(p) {
			debug.Log("%s matches a skip rule, leaving it out of this backup", p)
			continue
		}

		name := filepath.Base(p)

		var prevNode *Node
		if n, ok := prevTree[name]; ok {
			prevNode = &n
		}

		node, err := w.walkEntry(p, prevNode, forest)
		if err != nil {
			return nil, errors.Wrapf(err, "walking %s", p)
		}

		if err := t.Insert(name, node); err != nil {
			return nil, errors.Wrapf(err, "walking %s", p)
		}
	}

	return t, nil
}

// walkEntry gathers metadata for path and builds the Node for it, recursing
// through walkPaths if it's a directory.
func (w *Walker) walkEntry(path string, prevNode *Node, forest Forest) (Node, error) {
	typ, meta, err := getMetadata(path)
	if err != nil {
		return Node{}, err
	}

	switch typ {
	case Directory:
		entries, err := os.ReadDir(path)
		if err != nil {
			return Node{}, errors.Wrapf(err, "reading directory %s", path)
		}
		subpaths := make([]string, 0, len(entries))
		for _, e := range entries {
			subpaths = append(subpaths, filepath.Join(path, e.Name()))
		}

		var prevSubtree Tree
		if prevNode != nil {
			if prevNode.Type == Directory {
				prevSubtree = w.PreviousForest[prevNode.Subtree]
			} else {
				debug.Log("%s was a %s before, now a directory", path, prevNode.Type)
			}
		}

		subtree, err := w.walkPaths(subpaths, prevSubtree, forest)
		if err != nil {
			return Node{}, err
		}

		_, b, err := subtree.SerializeAndHash()
		if err != nil {
			return Node{}, err
		}
		forest[b.ID] = subtree

		if w.TreeSink != nil && w.wantPack(b.ID) {
			if err := w.TreeSink(b); err != nil {
				return Node{}, errors.Wrapf(err, "packing tree for %s", path)
			}
		}

		return NewDirectoryNode(meta, b.ID), nil

	case Symlink:
		target, err := os.Readlink(path)
		if err != nil {
			return Node{}, errors.Wrapf(err, "reading link %s", path)
		}
		return NewSymlinkNode(meta, target), nil

	default: // File
		if prevNode != nil && prevNode.Type == File && !fileChanged(meta, prevNode.Metadata) {
			debug.Log("%s matches its previous size and mtime, reusing chunks", path)
			return NewFileNode(meta, prevNode.Chunks), nil
		}
		if prevNode != nil && prevNode.Type != File {
			debug.Log("%s was a %s before, now a file", path, prevNode.Type)
		}

		chunks, err := w.chunkFile(path)
		if err != nil {
			return Node{}, err
		}
		return NewFileNode(meta, chunks), nil
	}
}

// fileChanged reports whether meta's size or modification time differ from
// a previous backup's, meaning the file's chunks can't be reused as-is.
func fileChanged(meta, prev Metadata) bool {
	return !meta.ModTime().Equal(prev.ModTime()) || meta.Size() != prev.Size()
}

// chunkFile loads path, cuts it into content-defined chunks, feeds each to
// w.Sink, and returns their ids in order.
func (w *Walker) chunkFile(path string) ([]objid.ID, error) {
	lf, err := blob.Load(path)
	if err != nil {
		return nil, err
	}
	defer lf.Close()

	c := chunker.New(lf.Bytes())
	var ids []objid.ID

	for {
		ch, ok := c.Next()
		if !ok {
			break
		}

		span := blob.NewFileSpan(lf, int(ch.Start), int(ch.Start+ch.Length))
		contents := blob.NewSpanContents(span)
		id := objid.FromData(contents.Bytes())

		if w.Sink != nil && w.wantPack(id) {
			b := blob.Blob{Contents: contents, ID: id, Kind: blob.Chunk}
			if err := w.Sink(b); err != nil {
				return nil, errors.Wrapf(err, "chunking %s", path)
			}
		} else {
			debug.Log("chunk %v from %s already packed", id, path)
		}

		ids = append(ids, id)
	}

	return ids, nil
}
