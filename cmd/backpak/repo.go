package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/cache"
	"github.com/mrkline/backpak/internal/config"
	"github.com/mrkline/backpak/internal/repository"
)

// openBackend builds the Backend the repository at globalOptions.RepoPath
// describes, wrapping it in Filter if the repository's config names an
// at-rest filter command.
func openBackend(ctx context.Context) (backend.Backend, config.Repo, error) {
	if err := requireRepoPath(); err != nil {
		return nil, config.Repo{}, err
	}

	fs, err := backend.NewFilesystem(globalOptions.RepoPath)
	if err != nil {
		return nil, config.Repo{}, err
	}

	repoConf, err := config.LoadRepo(ctx, fs)
	if err != nil {
		fs.Close()
		return nil, config.Repo{}, errors.Wrap(err, "loading repository config")
	}

	var be backend.Backend = fs
	if repoConf.Filter != "" {
		be, err = backend.NewFilter(fs, repoConf.Filter, repoConf.Unfilter)
		if err != nil {
			fs.Close()
			return nil, config.Repo{}, err
		}
	}
	return be, repoConf, nil
}

// openRepository opens the backend at globalOptions.RepoPath and builds a
// Repository over it, with a local disk cache sized per the user's config
// (or none, if there's no user cache directory).
func openRepository(ctx context.Context) (*repository.Repository, error) {
	be, _, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}

	userConf, err := config.LoadUser()
	if err != nil {
		return nil, errors.Wrap(err, "loading user config")
	}

	disk, err := openDiskCache(userConf)
	if err != nil {
		return nil, err
	}

	return repository.Open(ctx, be, disk, 0)
}

// openDiskCache opens the on-disk pack cache under the user's cache
// directory, keyed by the repository's own path so distinct repositories
// don't share (or collide in) the same cache directory.
func openDiskCache(userConf config.User) (*cache.Cache, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		warn("no user cache directory available, running without a disk cache: %v", err)
		return nil, nil
	}

	abs, err := filepath.Abs(globalOptions.RepoPath)
	if err != nil {
		return nil, errors.Wrap(err, "resolving repository path for cache naming")
	}

	dir := filepath.Join(base, "backpak", cacheKeyFor(abs))
	c, err := cache.New(dir, userConf.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "opening disk cache")
	}
	return c, nil
}
