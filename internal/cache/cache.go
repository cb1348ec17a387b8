// Package cache implements a size-bounded, least-recently-used local disk
// cache shared across backends. Entries live as plain files in a directory;
// a SQLite database alongside them tracks name, last-access time, and size
// so eviction doesn't need to stat every file in the directory.
package cache

import (
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/mrkline/backpak/internal/debug"
)

// DefaultSize is used when no cache size is configured.
const DefaultSize uint64 = 1 << 30 // 1 GiB

// Cache is a local cache directory backed by a SQLite index of what's in it.
//
// Earlier drafts kept file contents in the database too, but forcing every
// byte through a single locked connection turned out to be a fine way to
// make everything slow. File contents live in the directory; the database
// only tracks metadata.
type Cache struct {
	Directory string

	mu sync.Mutex
	db *sql.DB
}

// New opens (creating if needed) a cache in dir, enforcing cacheSize bytes
// as the total size of cached entries.
func New(dir string, cacheSize uint64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating cache dir %v", dir)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "cache_metadata.sqlite"))
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	// The metadata updates are small and serialized by our own mutex anyway;
	// one connection avoids SQLITE_BUSY from competing writers in-process.
	db.SetMaxOpenConns(1)

	c := &Cache{Directory: dir, db: db}
	if err := c.init(cacheSize); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init(cacheSize uint64) error {
	var version int
	if err := c.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "reading user_version")
	}

	if version < 1 {
		stmts := []string{
			`CREATE TABLE cache (
				name TEXT NOT NULL PRIMARY KEY,
				time INTEGER NOT NULL,
				size INTEGER NOT NULL
			)`,
			`CREATE TABLE settings (
				key TEXT NOT NULL PRIMARY KEY,
				value INTEGER NOT NULL
			)`,
			`PRAGMA user_version=1`,
		}
		for _, s := range stmts {
			if _, err := c.db.Exec(s); err != nil {
				return errors.Wrapf(err, "running %q", s)
			}
		}
	}

	var journalMode string
	if err := c.db.QueryRow("PRAGMA journal_mode=wal").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "setting WAL mode")
	}
	// In-memory databases report "memory" instead.
	if journalMode != "wal" && journalMode != "memory" {
		return errors.Errorf("sqlite: couldn't set WAL mode, got %q", journalMode)
	}

	// Last process to open the cache wins.
	_, err := c.db.Exec(`REPLACE INTO settings(key, value) VALUES ('size', ?)`, cacheSize)
	return errors.Wrap(err, "writing cache size setting")
}

// Close closes the underlying database connection. It does not touch
// cached files on disk.
func (c *Cache) Close() error {
	return c.db.Close()
}

// TryRead opens name in the cache if present, bumping its access time.
// It returns (nil, nil) on a cache miss.
func (c *Cache) TryRead(name string) (*os.File, error) {
	fh, err := os.Open(filepath.Join(c.Directory, name))
	if err == nil {
		fi, statErr := fh.Stat()
		if statErr != nil {
			fh.Close()
			return nil, errors.Wrap(statErr, "stat on cache hit")
		}
		if err := c.bumpRow(name, fi.Size()); err != nil {
			fh.Close()
			return nil, err
		}
		return fh, nil
	}

	if os.IsNotExist(err) {
		// Not on disk; drop any stale row that thinks otherwise.
		c.mu.Lock()
		_, dbErr := c.db.Exec(`DELETE FROM cache WHERE name = ?`, name)
		c.mu.Unlock()
		if dbErr != nil {
			return nil, errors.Wrap(dbErr, "clearing stale cache row")
		}
		return nil, nil
	}

	return nil, errors.Wrapf(err, "opening cached %v", name)
}

// Insert copies contents into the cache under name and returns the cached
// file, reopened, for immediate reading.
func (c *Cache) Insert(name string, contents io.Reader) (*os.File, error) {
	to := filepath.Join(c.Directory, name)

	tmp, err := os.CreateTemp(c.Directory, "cache-insert-*")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file for cache insert")
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, contents); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, errors.Wrapf(err, "copying %v into cache", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, to); err != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrapf(err, "renaming into cache as %v", name)
	}

	fh, err := os.Open(to)
	if err != nil {
		return nil, errors.Wrapf(err, "reopening cached %v", name)
	}
	fi, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, err
	}
	if err := c.bumpRow(name, fi.Size()); err != nil {
		fh.Close()
		return nil, err
	}
	return fh, nil
}

func (c *Cache) bumpRow(name string, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		`REPLACE INTO cache(name, time, size) VALUES (?, ?, ?)`,
		name, time.Now().UnixNano(), size,
	)
	return errors.Wrapf(err, "updating cache row for %v", name)
}

// Evict removes name from the cache, on disk and in the index. It's not
// an error to evict something that isn't cached.
func (c *Cache) Evict(name string) error {
	if err := c.deleteIfExists(name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM cache WHERE name = ?`, name)
	return errors.Wrapf(err, "evicting %v", name)
}

func (c *Cache) deleteIfExists(name string) error {
	err := os.Remove(filepath.Join(c.Directory, name))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing cached %v", name)
}

// Prune evicts least-recently-used entries until the cache fits under its
// configured size, always keeping at least the single most recent entry
// even if that alone exceeds the limit.
func (c *Cache) Prune() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning prune transaction")
	}
	defer tx.Rollback()

	var maxSize int64
	if err := tx.QueryRow(`SELECT value FROM settings WHERE key = 'size'`).Scan(&maxSize); err != nil {
		return errors.Wrap(err, "reading cache size setting")
	}
	if maxSize <= 0 {
		return errors.New("cache: absurd zero (or negative) size limit")
	}

	rows, err := tx.Query(`SELECT name, time, size FROM cache ORDER BY time DESC`)
	if err != nil {
		return errors.Wrap(err, "listing cache entries")
	}

	type row struct {
		name string
		t    int64
		size int64
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.name, &r.t, &r.size); err != nil {
			rows.Close()
			return errors.Wrap(err, "scanning cache row")
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	// Keep the most-recently-used entries that fit under maxSize, always
	// keeping at least the single newest one even if it alone is over.
	var acc int64
	kept := 0
	for kept < len(all) && (kept == 0 || acc+all[kept].size <= maxSize) {
		acc += all[kept].size
		kept++
	}

	if kept == len(all) {
		// Everything fits.
		return tx.Commit()
	}

	oldestKept := all[kept-1].t
	for _, r := range all[kept:] {
		if err := c.deleteIfExists(r.name); err != nil {
			return err
		}
		debug.Log("cache: evicted %v (size %v) during prune", r.name, r.size)
	}
	if _, err := tx.Exec(`DELETE FROM cache WHERE time < ?`, oldestKept); err != nil {
		return errors.Wrap(err, "deleting spilled cache rows")
	}

	return tx.Commit()
}
