// Package config loads the two TOML config layers a repository operation
// may need: a user config (local settings like the disk cache budget) and
// a per-repository config, stored on the backend itself, that records how
// the repository was initialized (pack size, at-rest filter commands).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/cache"
)

// User holds settings that apply across every repository a user touches,
// loaded from ~/.config/backpak.toml.
type User struct {
	CacheSize uint64 `toml:"cache_size"`
}

// DefaultUser is what LoadUser returns when no config file exists.
func DefaultUser() User {
	return User{CacheSize: cache.DefaultSize}
}

// LoadUser reads the user config file, falling back to DefaultUser if it
// doesn't exist. A present-but-unparseable file is an error.
func LoadUser() (User, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return User{}, errors.Wrap(err, "finding home directory")
	}
	path := filepath.Join(home, ".config", "backpak.toml")

	u := DefaultUser()
	_, err = toml.DecodeFile(path, &u)
	if err == nil {
		return u, nil
	}
	if os.IsNotExist(err) {
		return DefaultUser(), nil
	}
	return User{}, errors.Wrapf(err, "parsing %s", path)
}
