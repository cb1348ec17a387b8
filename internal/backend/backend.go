// Package backend abstracts repository storage: local filesystem or a
// remote object store, reached through a uniform read/write/remove/list/
// probe interface. Filter and Semaphored compose over any Backend to add
// at-rest shell-command encryption and bounded network concurrency.
package backend

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
)

// ErrNotExist is returned (or wrapped) by Read for a key that doesn't
// exist. Remove and Probe don't return it: removing a missing key succeeds,
// and Probe reports it as false.
var ErrNotExist = fmt.Errorf("key does not exist")

// Kind partitions the keyspace so different kinds of object can be listed
// and swept independently, and so the on-disk layout can shard packs.
type Kind int

const (
	Pack Kind = iota
	Index
	Snapshot
	Config
)

func (k Kind) String() string {
	switch k {
	case Pack:
		return "pack"
	case Index:
		return "index"
	case Snapshot:
		return "snapshot"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Entry describes one object a List call found.
type Entry struct {
	Name string
	Size int64
}

// Backend is the uniform storage interface every repository operation goes
// through. Implementations must give write "total write" semantics: a
// reader observing a write in progress must never see a partial object,
// which in practice means writing to a temp name and renaming (or the
// object store's equivalent) on success only.
type Backend interface {
	// Read returns a stream of key's bytes. The caller must Close it.
	Read(ctx context.Context, kind Kind, name string) (io.ReadCloser, error)

	// Write stores the entirety of r's bytes under (kind, name).
	Write(ctx context.Context, kind Kind, name string, r io.Reader) error

	// Remove deletes (kind, name). Removing a key that doesn't exist is
	// not an error.
	Remove(ctx context.Context, kind Kind, name string) error

	// List invokes fn once per object of the given kind.
	List(ctx context.Context, kind Kind, fn func(Entry) error) error

	// Probe reports whether (kind, name) exists, more cheaply than Read.
	Probe(ctx context.Context, kind Kind, name string) (bool, error)

	// Close releases any resources (connections, handles) held open by
	// this backend.
	Close() error

	// Hasher returns a new non-cryptographic hash a caller can use to
	// checksum what it writes, independent of (and much cheaper than)
	// the content hash a blob is addressed by - ObjectId covers the
	// blob's decompressed content, not the compressed bytes that
	// actually land on the wire, so it can't by itself catch a write
	// truncated or flipped in transit.
	Hasher() hash.Hash
}

// IsNotExist reports whether err indicates a missing key.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}
