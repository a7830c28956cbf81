// Package diff computes the package-level delta between two release
// snapshots, honouring the removal policy that distinguishes
// base-to-base from base-to-cache comparisons.
package diff

import (
	"log/slog"
	"sort"

	"github.com/greatliontech/relgit/internal/release"
)

// Diff describes how one release's package set evolves into the next:
// packages added or retagged, and packages removed outright. Add and
// Remove are always disjoint.
type Diff struct {
	Add    map[string]string `json:"add"`
	Remove []string          `json:"remove"`
}

func New() *Diff {
	return &Diff{Add: map[string]string{}, Remove: []string{}}
}

// Compute diffs old against new. A nil old means new is the first
// release of a series and every package counts as added. Removal is
// only flagged when allowRemoval is set; cache releases record partial
// package sets, so their missing packages are resolved later by
// ReconcileCacheOverlap instead.
func Compute(old, new *release.Snapshot, allowRemoval bool) *Diff {
	d := New()
	if old == nil {
		slog.Debug("diff baseline", "release", new.Release.Name)
		for pkg, tag := range new.Packages {
			d.Add[pkg] = tag
		}
		return d
	}
	slog.Debug("diff releases", "from", old.Release.Name, "to", new.Release.Name,
		"allowRemoval", allowRemoval)
	for pkg, tag := range new.Packages {
		oldTag, ok := old.Packages[pkg]
		if ok && oldTag == tag {
			continue
		}
		d.Add[pkg] = tag
	}
	if allowRemoval {
		for pkg := range old.Packages {
			if _, ok := new.Packages[pkg]; !ok {
				d.Remove = append(d.Remove, pkg)
			}
		}
		sort.Strings(d.Remove)
	}
	return d
}

// ReconcileCacheOverlap folds the immediately preceding cache release
// into a base-to-cache diff. Packages unchanged since the prior cache
// are dropped from Add (no redundant import). Packages the prior cache
// carried but the new cache no longer mentions revert to their base
// release tag, or are removed when the base never had them.
func ReconcileCacheOverlap(d *Diff, base, priorCache *release.Snapshot) {
	for pkg, priorTag := range priorCache.Packages {
		if tag, ok := d.Add[pkg]; ok {
			if tag == priorTag {
				// Unchanged since the prior cache: already on the
				// branch at this tag, no import needed.
				delete(d.Add, pkg)
			}
			continue
		}
		if baseTag, ok := base.Packages[pkg]; ok {
			d.Add[pkg] = baseTag
		} else {
			d.Remove = append(d.Remove, pkg)
		}
	}
	sort.Strings(d.Remove)
}
