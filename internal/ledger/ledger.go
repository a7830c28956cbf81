// Package ledger reads and names the import-marker tags that record
// which package versions have already been materialized into the
// target repository. The tags themselves are the ledger's state; there
// is no separate index.
package ledger

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/greatliontech/relgit/internal/release"
)

// Marker is the branch-scoped record of the version of one package
// currently present on a branch.
type Marker struct {
	SVNTag string // short tag name, e.g. "MyPkg-01-02-03" or "MyPkg-r1234"
	GitTag string // full tag ref short name on the branch
}

// ImportTag names the upstream marker for an imported package version.
// Trunk imports are pinned to their revision since trunk moves.
func ImportTag(pkgPath, svnTag string, revision int) string {
	if svnTag == release.TrunkTag {
		return path.Join("import", fmt.Sprintf("%s-r%d", path.Base(pkgPath), revision))
	}
	return path.Join("import", path.Base(svnTag))
}

// BranchImportTag names the branch-scoped copy of an import marker.
func BranchImportTag(branch, pkgPath, svnTag string, revision int) string {
	return path.Join(branch, ImportTag(pkgPath, svnTag, revision))
}

// ReleaseTag names the tag that marks a release as fully processed on
// a branch. Nightlies are stamped under nightly/<branch>/, numbered
// releases under release/.
func ReleaseTag(desc release.Descriptor, branch string) string {
	if desc.Nightly {
		stamp := time.Unix(desc.Timestamp, 0).Format("2006-01-02T1504")
		return path.Join("nightly", branch, stamp)
	}
	return path.Join("release", desc.Name)
}

// Ledger is a point-in-time view of the target repository's tags. It
// is re-read at the start of every release pass; apply steps create
// tags behind its back, so a Ledger must never outlive its pass.
type Ledger struct {
	tags map[string]bool
}

// New builds a ledger view from a tag listing.
func New(tags []string) *Ledger {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t != "" {
			set[t] = true
		}
	}
	return &Ledger{tags: set}
}

// Contains reports whether the tag exists in the target repository.
func (l *Ledger) Contains(tag string) bool {
	return l.tags[tag]
}

// BranchMarkers extracts the live per-package markers for one branch,
// keyed by package name. For a given package at most one marker exists
// per branch, because creating a new one retires the old.
func (l *Ledger) BranchMarkers(branch string) map[string]Marker {
	markers := map[string]Marker{}
	prefix := path.Join(branch, "import") + "/"
	for tag := range l.tags {
		if !strings.HasPrefix(tag, prefix) {
			continue
		}
		short := path.Base(tag)
		name := strings.SplitN(short, "-", 2)[0]
		markers[name] = Marker{SVNTag: short, GitTag: tag}
	}
	return markers
}
