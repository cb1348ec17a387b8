// Package backup orchestrates one backup: walking a set of paths into a
// Forest, packing whatever chunks and trees the repository doesn't already
// have, flushing the resulting packs and indexes, and writing the snapshot
// that ties it all together.
package backup

import (
	"context"
	"os"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// Options configures one backup run.
type Options struct {
	// Paths to back up. Relative paths are resolved against the current
	// directory and symlinks are resolved, so the same logical path
	// reliably matches a previous backup's.
	Paths []string
	// Author stamps the resulting snapshot. If empty, the local
	// hostname is used.
	Author string
	Tags   []string
	// Skip holds regular expressions; any walked path matching one of
	// them (and everything beneath it, if it's a directory) is left out
	// of the snapshot.
	Skip []string
}

// Run backs up opts.Paths into repo and returns the id of the resulting
// snapshot.
func Run(ctx context.Context, repo *repository.Repository, opts Options) (objid.ID, error) {
	if len(opts.Paths) == 0 {
		return objid.Zero, errors.New("backup needs at least one path")
	}

	paths, err := canonicalize(opts.Paths)
	if err != nil {
		return objid.Zero, err
	}

	skip, err := compileSkips(opts.Skip)
	if err != nil {
		return objid.Zero, err
	}

	snapshots, err := loadChronologically(ctx, repo)
	if err != nil {
		return objid.Zero, errors.Wrap(err, "loading previous snapshots")
	}
	parent := parentSnapshot(paths, snapshots)

	var parentForest tree.Forest
	var parentTree *objid.ID
	if parent != nil {
		debug.Log("backup: using snapshot %s (tree %s) as parent", parent.ID, parent.Tree)
		parentForest, err = forestFromRoot(ctx, repo, parent.Tree)
		if err != nil {
			return objid.Zero, errors.Wrapf(err, "rebuilding tree %s from parent snapshot %s", parent.Tree, parent.ID)
		}
		parentTree = &parent.Tree
	} else {
		debug.Log("backup: no parent snapshot found for %v", paths)
	}

	p, err := NewPacker(ctx, repo, nil)
	if err != nil {
		return objid.Zero, err
	}

	// packed_blobs in the original: a blob (chunk or tree) is only worth
	// sending to the packer the first time it's seen, whether that's
	// because the repository already has it or because an earlier file
	// or subtree in this same backup already packed it.
	seen := make(objid.Set)
	packed := func(id objid.ID) bool {
		if repo.Master.HasBlob(id) {
			return false
		}
		return seen.Insert(id)
	}

	w := &tree.Walker{
		PreviousForest: parentForest,
		Packed:         packed,
		Sink:           p.Pack,
		TreeSink:       p.Pack,
		Skip:           skip,
	}

	root, _, err := w.Walk(paths, parentTree)
	if err != nil {
		p.Abandon()
		return objid.Zero, errors.Wrap(err, "walking paths")
	}

	if err := p.Finish(); err != nil {
		return objid.Zero, err
	}

	author := opts.Author
	if author == "" {
		if h, err := os.Hostname(); err == nil {
			author = h
		} else {
			author = "unknown"
		}
	}

	snap := snapshot.New(author, opts.Tags, paths, root)
	return uploadSnapshot(ctx, repo.Backend, snap)
}

// compileSkips builds a single path-matching predicate out of a set of
// regular expressions, ported from the original's RegexSet-based filter.
func compileSkips(patterns []string) (func(string) bool, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "skip rule %q is not a valid regular expression", p)
		}
		compiled = append(compiled, re)
	}
	return func(path string) bool {
		for _, re := range compiled {
			if re.MatchString(path) {
				return true
			}
		}
		return false
	}, nil
}

// canonicalize resolves each path to an absolute, symlink-free form and
// dedupes/sorts the result, so the same logical set of paths always
// compares equal regardless of how it was spelled or ordered.
func canonicalize(paths []string) ([]string, error) {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepathAbs(p)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %s", p)
		}
		set[abs] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
