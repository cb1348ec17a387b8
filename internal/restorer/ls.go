// Package restorer writes a snapshot's Forest back to the filesystem, and
// lists it without writing anything.
package restorer

import (
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/tree"
)

// List prints every entry reachable from root, one path per line, in the
// same spirit as `find`: directories get a trailing slash and symlinks show
// their target, so the listing alone says what kind of thing each line is.
func List(w io.Writer, root objid.ID, forest tree.Forest, recursive bool) error {
	t, ok := forest[root]
	if !ok {
		return errors.Errorf("tree %s not in forest", root)
	}
	return listTree(w, "", t, forest, recursive)
}

func listTree(w io.Writer, prefix string, t tree.Tree, forest tree.Forest, recursive bool) error {
	for _, name := range sortedNames(t) {
		n := t[name]
		p := path.Join(prefix, name)
		if err := printNode(w, p, n); err != nil {
			return err
		}
		if n.Type == tree.Directory && recursive {
			sub, ok := forest[n.Subtree]
			if !ok {
				return errors.Errorf("tree %s (for %s) not in forest", n.Subtree, p)
			}
			if err := listTree(w, p, sub, forest, recursive); err != nil {
				return err
			}
		}
	}
	return nil
}

func printNode(w io.Writer, p string, n tree.Node) error {
	switch n.Type {
	case tree.Directory:
		_, err := fmt.Fprintf(w, "%s/\n", p)
		return err
	case tree.Symlink:
		_, err := fmt.Fprintf(w, "%s -> %s\n", p, n.Target)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s\n", p)
		return err
	}
}

// sortedNames returns t's entry names in lexical order, so List's output is
// deterministic regardless of map iteration order.
func sortedNames(t tree.Tree) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
