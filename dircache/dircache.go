/*
Package dircache implements the persistent per-directory listing
cache (spec.md §4.C's directory-scan shortcut): for each directory
scanned as an extra-directory or old-db donor tree, it remembers the
directory's own mtime alongside the (name, size, mtime, hashes) of
every file it contained, so a later run can skip rehashing a directory
whose mtime hasn't changed.
*/
package dircache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bodgit/ckmame/hashes"
)

// Entry is one cached file within a directory.
type Entry struct {
	Name   string
	Size   uint64
	MTime  time.Time
	Hashes hashes.Set
}

type record struct {
	DirMTime time.Time
	Entries  []Entry
}

// Cache is a gob-encoded map of canonical directory path to record,
// read once on Open and flushed to disk on Close only if anything
// changed.
type Cache struct {
	path    string
	mu      sync.Mutex
	records map[string]record
	dirty   bool
}

// Open reads path, if it exists, into a new Cache. A missing file is
// not an error: it simply starts with an empty cache.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, records: make(map[string]record)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&c.records); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	instance *Cache
	once     sync.Once
	initErr  error
)

// Manager returns the process-wide singleton cache, opening path on
// first call and ignoring path on every subsequent one. Most callers
// should use this rather than Open directly, since a ckmame run scans
// the same donor trees from more than one place.
func Manager(path string) (*Cache, error) {
	once.Do(func() {
		instance, initErr = Open(path)
	})
	return instance, initErr
}

// Reset discards the process-wide singleton so a later Manager call
// reopens it; intended for tests.
func Reset() {
	instance = nil
	initErr = nil
	once = sync.Once{}
}

func canonical(dir string) (string, error) {
	return filepath.Abs(dir)
}

// Lookup returns the cached entries for dir if present and dirMTime
// still matches what was stored.
func (c *Cache) Lookup(dir string, dirMTime time.Time) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := canonical(dir)
	if err != nil {
		return nil, false
	}
	rec, ok := c.records[key]
	if !ok || !rec.DirMTime.Equal(dirMTime) {
		return nil, false
	}

	out := make([]Entry, len(rec.Entries))
	copy(out, rec.Entries)
	return out, true
}

// Store records entries as the listing of dir as of dirMTime.
func (c *Cache) Store(dir string, dirMTime time.Time, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := canonical(dir)
	if err != nil {
		return err
	}
	c.records[key] = record{DirMTime: dirMTime, Entries: append([]Entry(nil), entries...)}
	c.dirty = true
	return nil
}

// Invalidate drops any cached listing for dir, used after a mutation
// (spec.md §4.D's fix executor) changes a directory's contents out
// from under the cache.
func (c *Cache) Invalidate(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := canonical(dir)
	if err != nil {
		return err
	}
	if _, ok := c.records[key]; ok {
		delete(c.records, key)
		c.dirty = true
	}
	return nil
}

// Close writes the cache back to disk if it changed since Open,
// using a temp-file-then-rename so a crash mid-write can't corrupt
// the existing cache file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(tmp).Encode(c.records); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	c.dirty = false
	return nil
}
