// Package repository ties a Backend, its on-disk cache, and the master
// index together into the one thing archiver/restore/prune code actually
// wants: "give me the bytes for this blob" and "what packs make up this
// repository."
package repository

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
)

// Crude estimate of the overhead per cached blob: an ID, a linked-list
// node, and some pointers.
const blobCacheOverhead = len(objid.ID{}) + 64

// blobCache is a fixed-size, in-process LRU of decompressed blob
// contents, keyed by objid.ID. It exists so a restore or a repeated
// read of the same tree doesn't decompress the same pack entry twice.
type blobCache struct {
	mu sync.Mutex
	c  *lru.LRU[objid.ID, []byte]

	inflight map[objid.ID]*sync.WaitGroup

	free, size int
}

func newBlobCache(size int) *blobCache {
	c := &blobCache{free: size, size: size, inflight: make(map[objid.ID]*sync.WaitGroup)}

	maxEntries := size / blobCacheOverhead
	if maxEntries < 1 {
		maxEntries = 1
	}
	l, err := lru.NewLRU[objid.ID, []byte](maxEntries, c.evict)
	if err != nil {
		panic(err)
	}
	c.c = l
	return c
}

func (c *blobCache) add(id objid.ID, blob []byte) {
	size := cap(blob) + blobCacheOverhead
	if size > c.size {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.c.Contains(id) {
		return
	}

	for size > c.free {
		_, _, ok := c.c.RemoveOldest()
		if !ok {
			break
		}
	}

	c.c.Add(id, blob)
	c.free -= size
	debug.Log("repository: cached blob %v (%d bytes)", id, len(blob))
}

func (c *blobCache) get(id objid.ID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.Get(id)
}

func (c *blobCache) evict(id objid.ID, blob []byte) {
	c.free += cap(blob) + blobCacheOverhead
	debug.Log("repository: evicted blob %v (%d bytes)", id, len(blob))
}

// getOrCompute returns the cached blob for id, or calls compute exactly
// once (across concurrent callers) to fill it in.
func (c *blobCache) getOrCompute(id objid.ID, compute func() ([]byte, error)) ([]byte, error) {
	if blob, ok := c.get(id); ok {
		return blob, nil
	}

	c.mu.Lock()
	if wg, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		wg.Wait()
		if blob, ok := c.get(id); ok {
			return blob, nil
		}
		// The computing goroutine hit an error and didn't cache anything;
		// fall through and try ourselves.
		return c.getOrCompute(id, compute)
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.inflight[id] = wg
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		wg.Done()
	}()

	blob, err := compute()
	if err != nil {
		return nil, err
	}
	c.add(id, blob)
	return blob, nil
}
