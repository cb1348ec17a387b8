package main

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// cacheKeyFor returns a short, stable name for repoPath's disk cache
// subdirectory, so two repositories never share one cache directory (or
// fight over the same name) without needing the full, escaped filesystem
// path as the directory name.
func cacheKeyFor(repoPath string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(repoPath))
}
