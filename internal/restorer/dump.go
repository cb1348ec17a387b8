package restorer

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/tree"
)

// Dump writes a single path from a snapshot's tree to w: a file's contents
// verbatim, a directory's immediate entries in the same one-line-per-entry
// format List uses, or a symlink's target. p uses forward slashes
// regardless of host OS, matching how paths are recorded in a Tree.
func Dump(ctx context.Context, w io.Writer, repo *repository.Repository, root objid.ID, forest tree.Forest, p string) error {
	t, ok := forest[root]
	if !ok {
		return errors.Errorf("root tree %s not loaded", root)
	}

	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" {
		printDirListing(w, "", t)
		return nil
	}
	parts := strings.Split(clean, "/")

	var soFar string
	for i, name := range parts {
		node, ok := t[name]
		if !ok {
			return errors.Errorf("couldn't find %s in this snapshot", path.Join(soFar, name))
		}
		soFar = path.Join(soFar, name)
		last := i == len(parts)-1

		switch node.Type {
		case tree.Directory:
			sub, ok := forest[node.Subtree]
			if !ok {
				return errors.Errorf("tree %s (for %s) not loaded", node.Subtree, soFar)
			}
			if last {
				printDirListing(w, soFar, sub)
				return nil
			}
			t = sub

		case tree.Symlink:
			if !last {
				return errors.Errorf("%s is a symlink, not a directory", soFar)
			}
			fmt.Fprintf(w, "%s -> %s\n", soFar, node.Target)
			return nil

		default: // File
			if !last {
				return errors.Errorf("%s is a file, not a directory", soFar)
			}
			return dumpFile(ctx, w, repo, node.Chunks)
		}
	}

	return nil
}

func printDirListing(w io.Writer, dir string, t tree.Tree) {
	fmt.Fprintf(w, "%s/\n", dir)
	for _, name := range sortedNames(t) {
		node := t[name]
		full := path.Join(dir, name)
		switch node.Type {
		case tree.Directory:
			fmt.Fprintf(w, "%s/\n", full)
		case tree.Symlink:
			fmt.Fprintf(w, "%s -> %s\n", full, node.Target)
		default:
			fmt.Fprintln(w, full)
		}
	}
}

func dumpFile(ctx context.Context, w io.Writer, repo *repository.Repository, chunks []objid.ID) error {
	for _, id := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := repo.LoadBlob(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "loading chunk %s", id)
		}
		if _, err := w.Write(data); err != nil {
			return errors.Wrap(err, "writing dumped contents")
		}
	}
	return nil
}
