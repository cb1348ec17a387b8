package backup

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// filepathAbs resolves p to an absolute path with every symlink in it
// resolved, matching the original tool's use of Path::canonicalize -
// two different spellings of the same file (a relative path, a path through
// a symlinked directory) always end up identical.
func filepathAbs(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "%s doesn't exist", p)
	}
	return real, nil
}
