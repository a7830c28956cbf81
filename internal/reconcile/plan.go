package reconcile

import (
	"log/slog"
	"sort"

	"github.com/greatliontech/relgit/internal/ledger"
	"github.com/greatliontech/relgit/internal/metadata"
	"github.com/greatliontech/relgit/internal/release"
)

// ImportUnit is one unit of branch work: materialize one package
// version from its upstream import marker and stamp it with a
// branch-local marker. Units are created fresh per release pass.
type ImportUnit struct {
	Package     string // full package path
	PackageName string
	SVNTag      string
	Revision    int
	ImportTag   string // upstream marker holding the content
	BranchTag   string // branch marker this unit will create
	CurrentTag  string // existing branch marker to retire, if any
}

// Plan computes the ordered work list for one release pass. Units come
// out sorted ascending by source revision so the branch history
// follows true chronological commit order. The returned set records
// every package name the release mentions, whether or not it produced
// a unit; the retire step uses it to find packages the release
// dropped.
func Plan(snap *release.Snapshot, led *ledger.Ledger, branch string,
	cache *metadata.Cache, markers map[string]ledger.Marker, onlyForward bool,
) ([]ImportUnit, map[string]bool) {
	var units []ImportUnit
	considered := map[string]bool{}

	pkgs := make([]string, 0, len(snap.Packages))
	for pkg := range snap.Packages {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	for _, pkg := range pkgs {
		svnTag := snap.Packages[pkg]
		name := release.PackageName(pkg)
		considered[name] = true

		if cache.Package(name) == nil {
			slog.Debug("package not in metadata cache, assuming restricted import", "package", pkg)
			continue
		}
		if onlyForward && release.IsBranchTag(svnTag) {
			slog.Info("skipping branch tag in forward-only mode", "package", pkg, "tag", svnTag)
			continue
		}
		for _, rev := range cache.Revisions(name, svnTag) {
			importTag := ledger.ImportTag(pkg, svnTag, rev)
			if !led.Contains(importTag) {
				slog.Debug("import marker missing, assuming restricted import", "tag", importTag)
				continue
			}
			branchTag := ledger.BranchImportTag(branch, pkg, svnTag, rev)
			if led.Contains(branchTag) {
				slog.Info("import already done, skipping",
					"package", pkg, "tag", svnTag, "revision", rev, "branch", branch)
				continue
			}
			current := ""
			if m, ok := markers[name]; ok {
				current = m.GitTag
				if onlyForward {
					if cmp, err := release.CompareTagsSamePackage(m.SVNTag, svnTag); err == nil && cmp != -1 {
						slog.Info("import blocked, forward-only mode will not downgrade",
							"package", pkg, "tag", svnTag, "current", m.SVNTag)
						continue
					}
				}
			}
			units = append(units, ImportUnit{
				Package:     pkg,
				PackageName: name,
				SVNTag:      svnTag,
				Revision:    rev,
				ImportTag:   importTag,
				BranchTag:   branchTag,
				CurrentTag:  current,
			})
		}
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].Revision != units[j].Revision {
			return units[i].Revision < units[j].Revision
		}
		return units[i].Package < units[j].Package
	})
	return units, considered
}
