package config

import (
	"bytes"
	"context"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/pack"
)

// repoConfigVersion is bumped whenever Repo's on-disk shape changes in a
// way older builds can't read.
const repoConfigVersion = 1

// Repo is the per-repository config written once at init and read every
// time the repository is opened. It's the record of decisions (pack size,
// at-rest filter) that have to stay consistent for the life of the
// repository, so they live with the data instead of a user's local
// settings.
type Repo struct {
	Version int `toml:"version"`
	// Backend names which Backend implementation owns the repository's
	// storage (only "filesystem" is implemented by this core; others
	// are named so a config written by a future backend is still
	// self-describing).
	Backend string `toml:"backend"`
	// PackSize records the pack target size chosen at init. Zero means
	// pack.DefaultTargetSize. The packer does not read it: every pack is
	// sized against pack.DefaultTargetSize.
	PackSize uint64 `toml:"pack_size"`
	// Filter/Unfilter are shell commands every object is piped through
	// on write/read (e.g. a `gpg` invocation), or empty for neither.
	Filter   string `toml:"filter,omitempty"`
	Unfilter string `toml:"unfilter,omitempty"`
}

// NewRepo returns a Repo for a freshly initialized repository.
func NewRepo(backendKind string, packSize uint64, filter, unfilter string) Repo {
	if packSize == 0 {
		packSize = pack.DefaultTargetSize
	}
	return Repo{
		Version:  repoConfigVersion,
		Backend:  backendKind,
		PackSize: packSize,
		Filter:   filter,
		Unfilter: unfilter,
	}
}

// EffectivePackSize returns c.PackSize, or pack.DefaultTargetSize if unset
// (e.g. a config decoded before this field existed).
func (c Repo) EffectivePackSize() uint64 {
	if c.PackSize == 0 {
		return pack.DefaultTargetSize
	}
	return c.PackSize
}

// WriteRepo encodes c as TOML and uploads it as the repository's config
// object. Called once, at init.
func WriteRepo(ctx context.Context, be backend.Backend, c Repo) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return errors.Wrap(err, "encoding repository config")
	}
	return be.Write(ctx, backend.Config, "config", &buf)
}

// LoadRepo reads and decodes the repository config from be.
func LoadRepo(ctx context.Context, be backend.Backend) (Repo, error) {
	rc, err := be.Read(ctx, backend.Config, "config")
	if err != nil {
		return Repo{}, errors.Wrap(err, "reading repository config")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Repo{}, errors.Wrap(err, "reading repository config")
	}

	var c Repo
	if err := toml.Unmarshal(data, &c); err != nil {
		return Repo{}, errors.Wrap(err, "parsing repository config")
	}
	if c.Version > repoConfigVersion {
		return Repo{}, errors.Errorf("repository config version %d is newer than this build understands (%d)", c.Version, repoConfigVersion)
	}
	return c, nil
}
