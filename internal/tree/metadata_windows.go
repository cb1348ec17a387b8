//go:build windows

package tree

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
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

	var attrs uint32
	if d, ok := fi.Sys().(*windows.Win32FileAttributeData); ok {
		attrs = d.FileAttributes
	}

	meta := Metadata{
		Platform: Windows,
		Windows: &WindowsMetadata{
			Attributes: attrs,
			ModTime:    fi.ModTime(),
			Size:       uint64(fi.Size()),
		},
	}

	return typ, meta, nil
}
