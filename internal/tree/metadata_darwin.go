//go:build darwin

package tree

import (
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// getMetadata lstat's path and returns the NodeType and Metadata to record
// for it. Symlinks are reported as Symlink without following them.
func getMetadata(path string) (NodeType, Metadata, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, Metadata{}, errors.Wrapf(err, "lstat %s", path)
	}

	var typ NodeType
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		typ = Symlink
	case fi.IsDir():
		typ = Directory
	default:
		typ = File
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, Metadata{}, errors.Errorf("unexpected stat type for %s", path)
	}

	meta := Metadata{
		Platform: POSIX,
		POSIX: &POSIXMetadata{
			Mode:    uint32(fi.Mode().Perm()),
			UID:     st.Uid,
			GID:     st.Gid,
			ModTime: fi.ModTime(),
			AccTime: time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec),
			Size:    uint64(fi.Size()),
		},
	}

	return typ, meta, nil
}
