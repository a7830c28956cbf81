// Package release models point-in-time release snapshots: the record
// of which version tag of every package went into one numbered build.
package release

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/google/renameio/v2"
)

// ErrFirstNotBase marks a release series whose first element is not a
// full base release.
var ErrFirstNotBase = errors.New("first release in series is not a base release")

// Release types.
const (
	TypeBase     = "base"
	TypeCache    = "cache"
	TypeNightly  = "nightly"
	TypeSnapshot = "snapshot"
)

// Descriptor identifies one release.
type Descriptor struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Nightly   bool   `json:"nightly"`
	Author    string `json:"author,omitempty"`
}

// Snapshot is one release's package content: a mapping of package path
// to the version tag built into the release. Immutable once loaded.
type Snapshot struct {
	Release  Descriptor        `json:"release"`
	Packages map[string]string `json:"tags"`
}

// PackageName returns the final element of a package path.
func PackageName(pkgPath string) string {
	return path.Base(pkgPath)
}

// Tag returns the version tag for a package path, if present.
func (s *Snapshot) Tag(pkgPath string) (string, bool) {
	tag, ok := s.Packages[pkgPath]
	return tag, ok
}

// TagByName looks a package up by its short name rather than its full
// path. Cache release files usually record full paths, but base
// lookups during retirement only have the name to go on.
func (s *Snapshot) TagByName(name string) (pkgPath, tag string, ok bool) {
	for p, t := range s.Packages {
		if PackageName(p) == name {
			return p, t, true
		}
	}
	return "", "", false
}

// Load reads a snapshot file, checking the structural keys.
func Load(fname string) (*Snapshot, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("release file %s: %w", fname, err)
	}
	if s.Release.Name == "" {
		return nil, fmt.Errorf("release file %s: missing release name", fname)
	}
	if s.Packages == nil {
		s.Packages = map[string]string{}
	}
	switch s.Release.Type {
	case TypeBase, TypeCache, TypeNightly, TypeSnapshot:
	default:
		return nil, fmt.Errorf("release file %s: unknown release type %q", fname, s.Release.Type)
	}
	return s, nil
}

// Write persists a snapshot as JSON.
func (s *Snapshot) Write(fname string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(fname, data, 0o644)
}

// Merge copies packages from other into s where s has no entry yet.
// Used to assemble super-releases from several release files.
func (s *Snapshot) Merge(other *Snapshot) []string {
	var merged []string
	for pkg, tag := range other.Packages {
		if _, ok := s.Packages[pkg]; !ok {
			s.Packages[pkg] = tag
			merged = append(merged, pkg)
		}
	}
	sort.Strings(merged)
	return merged
}
