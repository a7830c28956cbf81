package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/renameio/v2"
)

// ErrCacheCorrupt marks a cache file that exists but cannot be parsed
// into the canonical shape. A missing file is not an error.
var ErrCacheCorrupt = errors.New("metadata cache corrupt")

// TagMetadata is the source-VCS metadata for one (package, tag,
// revision) triple. Entries for numbered tags never change once
// recorded; trunk accumulates one entry per observed revision.
type TagMetadata struct {
	Revision int    `json:"revision"`
	Date     string `json:"date"`
	Author   string `json:"author"`
	Message  string `json:"msg"`
}

// PackageEntry holds everything known about one package, keyed by
// version tag and then revision.
type PackageEntry struct {
	Path     string                          `json:"path"`
	Versions map[string]map[int]TagMetadata `json:"versions"`
}

// Cache is the persisted record of source-VCS tag metadata, keyed by
// package name. It only ever grows during a run.
type Cache struct {
	packages map[string]*PackageEntry
}

func NewCache() *Cache {
	return &Cache{packages: map[string]*PackageEntry{}}
}

// Load reads a persisted cache. A missing file yields an empty cache.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCache(), nil
		}
		return nil, err
	}
	pkgs := map[string]*PackageEntry{}
	if err := json.Unmarshal(data, &pkgs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, path, err)
	}
	for name, entry := range pkgs {
		if entry == nil || entry.Versions == nil {
			return nil, fmt.Errorf("%w: %s: package %q has no versions map", ErrCacheCorrupt, path, name)
		}
	}
	return &Cache{packages: pkgs}, nil
}

// Package returns the entry for a package name, or nil if unknown.
func (c *Cache) Package(name string) *PackageEntry {
	return c.packages[name]
}

func (c *Cache) Packages() []string {
	names := make([]string, 0, len(c.packages))
	for name := range c.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether metadata for (package, tag, revision) is cached.
func (c *Cache) Has(pkg, tag string, revision int) bool {
	entry, ok := c.packages[pkg]
	if !ok {
		return false
	}
	revs, ok := entry.Versions[tag]
	if !ok {
		return false
	}
	_, ok = revs[revision]
	return ok
}

// HasTag reports whether any revision of (package, tag) is cached.
func (c *Cache) HasTag(pkg, tag string) bool {
	entry, ok := c.packages[pkg]
	if !ok {
		return false
	}
	return len(entry.Versions[tag]) > 0
}

// Get returns the metadata for (package, tag, revision).
func (c *Cache) Get(pkg, tag string, revision int) (TagMetadata, bool) {
	entry, ok := c.packages[pkg]
	if !ok {
		return TagMetadata{}, false
	}
	meta, ok := entry.Versions[tag][revision]
	return meta, ok
}

// Record stores metadata for (package, tag). Re-recording an already
// known (package, tag, revision) triple is a no-op.
func (c *Cache) Record(pkg, path, tag string, meta TagMetadata) {
	entry, ok := c.packages[pkg]
	if !ok {
		entry = &PackageEntry{Path: path, Versions: map[string]map[int]TagMetadata{}}
		c.packages[pkg] = entry
	}
	revs, ok := entry.Versions[tag]
	if !ok {
		revs = map[int]TagMetadata{}
		entry.Versions[tag] = revs
	}
	if _, ok := revs[meta.Revision]; ok {
		return
	}
	revs[meta.Revision] = meta
}

// Revisions returns the cached revisions for (package, tag) in
// ascending order.
func (c *Cache) Revisions(pkg, tag string) []int {
	entry, ok := c.packages[pkg]
	if !ok {
		return nil
	}
	revs := make([]int, 0, len(entry.Versions[tag]))
	for rev := range entry.Versions[tag] {
		revs = append(revs, rev)
	}
	sort.Ints(revs)
	return revs
}

// Persist writes the cache to path. An existing file is first renamed
// aside with a timestamped suffix so a crash mid-write loses nothing.
func (c *Cache) Persist(path string, now time.Time) error {
	if _, err := os.Stat(path); err == nil {
		backup := path + ".bak." + now.Format("20060102T1504.05")
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("backing up previous cache: %w", err)
		}
	}
	data, err := json.MarshalIndent(c.packages, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
