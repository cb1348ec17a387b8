package restorer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
	"github.com/mrkline/backpak/internal/tree"
)

// Options configures a Restore run.
type Options struct {
	// Output, if set, restores under this directory instead of the
	// snapshot's original absolute paths. A snapshot covering
	// /home/me/src/foo restored with Output "/tmp" lands at /tmp/foo.
	Output string
	// DryRun reports what Restore would do without touching the
	// filesystem.
	DryRun bool
	// Delete removes files and directories under each restored path that
	// the snapshot doesn't contain.
	Delete bool
	// Times restores modification and access times.
	Times bool
	// Permissions restores POSIX file permissions.
	Permissions bool
}

// Stats counts what a Restore run did (or, with DryRun, would do).
type Stats struct {
	Added   int
	Updated int
	Removed int
}

// Restore writes snap's tree to the filesystem, reading blobs out of repo.
func Restore(ctx context.Context, repo *repository.Repository, snap snapshot.Snapshot, forest tree.Forest, opts Options) (Stats, error) {
	root, ok := forest[snap.Tree]
	if !ok {
		return Stats{}, errors.Errorf("snapshot tree %s not in forest", snap.Tree)
	}

	r := &restorer{ctx: ctx, repo: repo, forest: forest, opts: opts}

	for name, node := range root {
		dest, err := r.destFor(snap, name)
		if err != nil {
			return r.stats, err
		}
		if err := r.sync(dest, node); err != nil {
			return r.stats, errors.Wrapf(err, "restoring %s", dest)
		}
	}

	return r.stats, nil
}

// destFor maps a root entry's name (the base name it was backed up under)
// to the path it should be restored to.
func (r *restorer) destFor(snap snapshot.Snapshot, name string) (string, error) {
	if r.opts.Output != "" {
		return filepath.Join(r.opts.Output, name), nil
	}
	for _, p := range snap.Paths {
		if filepath.Base(p) == name {
			return p, nil
		}
	}
	return "", errors.Errorf("no original path for %s in this snapshot", name)
}

type restorer struct {
	ctx    context.Context
	repo   *repository.Repository
	forest tree.Forest
	opts   Options
	stats  Stats
}

// sync brings path on disk into line with the desired node, recursing into
// directories. It never follows symlinks, so a symlink under a restored
// directory is replaced wholesale rather than walked through.
func (r *restorer) sync(path string, node tree.Node) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}

	lst, statErr := os.Lstat(path)
	exists := statErr == nil

	switch node.Type {
	case tree.Directory:
		if exists && !lst.IsDir() {
			debug.Log("restore: %s is a %v, replacing with a directory", path, lst.Mode())
			if err := r.remove(path, lst); err != nil {
				return err
			}
			exists = false
		}
		if !exists {
			debug.Log("restore: creating directory %s", path)
			r.stats.Added++
			if !r.opts.DryRun {
				if err := os.Mkdir(path, 0o755); err != nil && !os.IsExist(err) {
					return errors.Wrapf(err, "creating directory %s", path)
				}
			}
		}
		return r.syncDir(path, node)

	case tree.Symlink:
		if exists && lst.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err == nil && target == node.Target {
				debug.Log("%s already links to %s", path, node.Target)
				return nil
			}
		}
		if exists {
			if err := r.remove(path, lst); err != nil {
				return err
			}
		} else {
			r.stats.Added++
		}
		if exists {
			r.stats.Updated++
		}
		debug.Log("restore: symlinking %s -> %s", path, node.Target)
		if !r.opts.DryRun {
			if err := os.Symlink(node.Target, path); err != nil {
				return errors.Wrapf(err, "creating symlink %s", path)
			}
		}
		return nil

	default: // File
		unchanged := exists && !lst.IsDir() && lst.Mode()&os.ModeSymlink == 0 &&
			uint64(lst.Size()) == node.Metadata.Size() && lst.ModTime().Equal(node.Metadata.ModTime())
		if unchanged {
			debug.Log("%s matches its snapshot size and mtime, leaving contents alone", path)
			return r.applyMetadata(path, node)
		}
		if exists {
			if err := r.remove(path, lst); err != nil {
				return err
			}
			r.stats.Updated++
		} else {
			r.stats.Added++
		}
		debug.Log("restore: writing %s", path)
		if !r.opts.DryRun {
			if err := r.writeFile(path, node); err != nil {
				return err
			}
		}
		return r.applyMetadata(path, node)
	}
}

// syncDir restores every entry the snapshot's subtree holds for node, then
// (if opts.Delete) removes anything on disk that isn't in that subtree.
func (r *restorer) syncDir(path string, node tree.Node) error {
	sub, ok := r.forest[node.Subtree]
	if !ok {
		return errors.Errorf("tree %s not in forest", node.Subtree)
	}

	for name, child := range sub {
		if err := r.sync(filepath.Join(path, name), child); err != nil {
			return err
		}
	}

	if !r.opts.Delete {
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if r.opts.DryRun && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "listing %s", path)
	}
	for _, e := range entries {
		if _, wanted := sub[e.Name()]; wanted {
			continue
		}
		child := filepath.Join(path, e.Name())
		debug.Log("restore: removing %s, not in snapshot", child)
		r.stats.Removed++
		if !r.opts.DryRun {
			if err := os.RemoveAll(child); err != nil {
				return errors.Wrapf(err, "removing %s", child)
			}
		}
	}
	return nil
}

func (r *restorer) remove(path string, lst os.FileInfo) error {
	if r.opts.DryRun {
		return nil
	}
	if lst.IsDir() {
		return errors.Wrapf(os.RemoveAll(path), "removing %s", path)
	}
	return errors.Wrapf(os.Remove(path), "removing %s", path)
}

func (r *restorer) writeFile(path string, node tree.Node) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer fh.Close()

	for _, chunk := range node.Chunks {
		data, err := r.repo.LoadBlob(r.ctx, chunk)
		if err != nil {
			return errors.Wrapf(err, "loading chunk %s for %s", chunk, path)
		}
		if _, err := fh.Write(data); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return nil
}

// applyMetadata restores times and/or permissions per opts. Ownership
// (uid/gid) is never restored - doing so needs privileges this tool has no
// business assuming it has.
func (r *restorer) applyMetadata(path string, node tree.Node) error {
	if r.opts.DryRun {
		return nil
	}
	if node.Type == tree.Symlink {
		// os.Chtimes/Chmod both follow symlinks, and there's no portable
		// way in the standard library to avoid that, so a symlink's own
		// metadata is left alone rather than risking the wrong target.
		return nil
	}
	if r.opts.Times {
		meta := node.Metadata
		if err := os.Chtimes(path, meta.AccTime(), meta.ModTime()); err != nil {
			return errors.Wrapf(err, "setting times on %s", path)
		}
	}
	if r.opts.Permissions && node.Metadata.POSIX != nil {
		mode := os.FileMode(node.Metadata.POSIX.Mode & 0o7777)
		if err := os.Chmod(path, mode); err != nil {
			return errors.Wrapf(err, "setting permissions on %s", path)
		}
	}
	return nil
}
