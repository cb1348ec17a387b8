package cache_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/mrkline/backpak/internal/cache"
)

func namesLeft(t *testing.T, c *cache.Cache) []string {
	t.Helper()
	// Re-derive from Prune's own ordering by trying reads; simplest is to
	// poke the two known names directly since the test only ever inserts
	// "foo" and "baz".
	var left []string
	for _, n := range []string{"baz", "foo"} {
		fh, err := c.TryRead(n)
		if err != nil {
			t.Fatal(err)
		}
		if fh != nil {
			fh.Close()
			left = append(left, n)
		}
	}
	return left
}

func TestCacheSmoke(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir, cache.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fh, err := c.Insert("foo", bytes.NewReader([]byte{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	back, err := io.ReadAll(fh)
	fh.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, []byte{1, 2, 3, 4}) {
		t.Fatalf("got %v, want [1 2 3 4]", back)
	}

	miss, err := c.TryRead("bar")
	if err != nil {
		t.Fatal(err)
	}
	if miss != nil {
		miss.Close()
		t.Fatal("expected a cache miss for an entry never inserted")
	}

	if _, err := c.Insert("baz", bytes.NewReader([]byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	}

	// The default size is enormous; everything fits.
	if err := c.Prune(); err != nil {
		t.Fatal(err)
	}
	if left := namesLeft(t, c); len(left) != 2 {
		t.Fatalf("expected both entries to survive, got %v", left)
	}
}

func TestCachePruneEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if fh, err := c.Insert("foo", bytes.NewReader([]byte{1, 2, 3, 4})); err != nil {
		t.Fatal(err)
	} else {
		fh.Close()
	}
	if fh, err := c.Insert("baz", bytes.NewReader([]byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	} else {
		fh.Close()
	}

	if err := c.Prune(); err != nil {
		t.Fatal(err)
	}

	if left := namesLeft(t, c); len(left) != 1 || left[0] != "baz" {
		t.Fatalf("expected only baz to survive, got %v", left)
	}
}

func TestCacheEvict(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir, cache.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Insert("baz", bytes.NewReader([]byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	if err := c.Evict("baz"); err != nil {
		t.Fatal(err)
	}

	fh, err := c.TryRead("baz")
	if err != nil {
		t.Fatal(err)
	}
	if fh != nil {
		fh.Close()
		t.Fatal("expected baz to be gone after eviction")
	}
}
