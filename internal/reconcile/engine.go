// Package reconcile brings a target branch's content in line with a
// chronological series of release snapshots, one idempotent package
// import at a time.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/greatliontech/relgit/internal/gitrepo"
	"github.com/greatliontech/relgit/internal/ledger"
	"github.com/greatliontech/relgit/internal/metadata"
	"github.com/greatliontech/relgit/internal/release"
)

// CommitDateMode selects the committer timestamp for created commits.
type CommitDateMode string

const (
	// CommitDateNow leaves the committer date as the wall clock.
	CommitDateNow CommitDateMode = "now"
	// CommitDateRelease stamps commits with the release's build time.
	CommitDateRelease CommitDateMode = "release"
	// CommitDateAuthor reuses the original author date.
	CommitDateAuthor CommitDateMode = "author"
)

// Options tune one reconciliation run.
type Options struct {
	// ParentBranch anchors a newly created branch:
	// "BRANCH:COMMIT", "BRANCH:@TIMESTAMP" or "BRANCH:@FILE" (the
	// file's release timestamp is used). Empty means orphan.
	ParentBranch string
	// BaseRelease resolves packages dropped by cache releases: revert
	// to the base version, or delete when the base never had them.
	BaseRelease *release.Snapshot
	// SkipReleaseTag suppresses release marking and the matching
	// skip-check, for layering a series onto a long-lived branch.
	SkipReleaseTag bool
	// OnlyForward never downgrades a package to an older tag.
	OnlyForward bool
	CommitDate  CommitDateMode
	// Committer identifies the migration tool in committer and tagger
	// signatures.
	Committer gitrepo.Signature
}

// Engine replays release snapshots onto a branch. All state it needs
// beyond its inputs lives in the target repository's tags, so
// interrupted runs resume safely by re-running.
type Engine struct {
	repo    gitrepo.Repo
	cache   *metadata.Cache
	authors *metadata.Authors
	opts    Options
}

func New(repo gitrepo.Repo, cache *metadata.Cache, authors *metadata.Authors, opts Options) *Engine {
	if opts.CommitDate == "" {
		opts.CommitDate = CommitDateRelease
	}
	if opts.Committer.Name == "" {
		opts.Committer = gitrepo.Signature{Name: "relgit", Email: "relgit@localhost"}
	}
	return &Engine{repo: repo, cache: cache, authors: authors, opts: opts}
}

// Run processes the series in order against the branch. The caller is
// responsible for chronological ordering; Run refuses a series that
// does not open with a base release.
func (e *Engine) Run(ctx context.Context, branch string, series release.Series) error {
	if err := series.Validate(); err != nil {
		return err
	}
	if err := e.prepareBranchPoint(branch); err != nil {
		return err
	}
	for _, snap := range series {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processRelease(ctx, branch, snap); err != nil {
			return fmt.Errorf("release %s: %w", snap.Release.Name, err)
		}
	}
	return nil
}

// prepareBranchPoint moves the working tree to the branch, creating it
// at the requested ancestry point, or as an orphan when none is given.
func (e *Engine) prepareBranchPoint(branch string) error {
	exists, err := e.repo.BranchExists(branch)
	if err != nil {
		return err
	}
	if e.opts.ParentBranch == "" || exists {
		slog.Info("switching to branch", "branch", branch)
		return e.repo.SwitchBranch(branch)
	}
	parent, commitish, ok := strings.Cut(e.opts.ParentBranch, ":")
	if !ok {
		return fmt.Errorf("malformed parent branch %q, want BRANCH:COMMIT", e.opts.ParentBranch)
	}
	if strings.HasPrefix(commitish, "@") {
		timestamp, err := resolveAnchorTimestamp(commitish[1:])
		if err != nil {
			return err
		}
		commitish, err = e.repo.CommitBefore(parent, timestamp)
		if err != nil {
			return err
		}
		slog.Info("mapped timestamp to branch point", "timestamp", timestamp, "commit", commitish)
	}
	slog.Info("creating branch", "branch", branch, "parent", parent, "commit", commitish)
	return e.repo.CreateBranchFrom(branch, commitish)
}

// resolveAnchorTimestamp reads an @-anchor, which is either a plain
// epoch timestamp or a release file whose build time to use.
func resolveAnchorTimestamp(anchor string) (int64, error) {
	if _, err := os.Stat(anchor); err == nil {
		snap, err := release.Load(anchor)
		if err != nil {
			return 0, err
		}
		slog.Info("taking branch point timestamp from release file",
			"file", anchor, "timestamp", snap.Release.Timestamp)
		return snap.Release.Timestamp, nil
	}
	var ts int64
	if _, err := fmt.Sscanf(anchor, "%d", &ts); err != nil {
		return 0, fmt.Errorf("anchor %q is neither a file nor a timestamp", anchor)
	}
	return ts, nil
}

// processRelease is one full reconciliation pass. The ledger is
// re-read here, never carried over, because the apply step creates
// markers behind any older view.
func (e *Engine) processRelease(ctx context.Context, branch string, snap *release.Snapshot) error {
	tags, err := e.repo.Tags()
	if err != nil {
		return err
	}
	led := ledger.New(tags)
	markers := led.BranchMarkers(branch)
	slog.Info("processing release", "release", snap.Release.Name, "currentMarkers", len(markers))

	releaseTag := ledger.ReleaseTag(snap.Release, branch)
	if !e.opts.SkipReleaseTag && led.Contains(releaseTag) {
		slog.Info("release tag already made, skipping", "tag", releaseTag)
		return nil
	}

	units, considered := Plan(snap, led, branch, e.cache, markers, e.opts.OnlyForward)

	processed := 0
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.applyUnit(unit, snap, branch); err != nil {
			return err
		}
		processed++
		slog.Info("processed unit", "done", processed, "total", len(units))
	}

	retired, err := e.retire(snap, branch, markers, considered)
	if err != nil {
		return err
	}
	processed += retired

	if e.opts.SkipReleaseTag {
		slog.Info("processed release without tagging",
			"release", snap.Release.Name, "packages", processed)
		return nil
	}
	if snap.Release.Nightly {
		err = e.repo.CreateTag(releaseTag)
	} else {
		msg := fmt.Sprintf("Tagging release %s", snap.Release.Name)
		err = e.repo.CreateAnnotatedTag(releaseTag, msg, e.tagger(snap))
	}
	if err != nil {
		return err
	}
	slog.Info("tagged release", "release", snap.Release.Name, "tag", releaseTag, "packages", processed)
	return nil
}

// applyUnit materializes one package version onto the branch as an
// atomic, idempotently re-skippable step.
func (e *Engine) applyUnit(unit ImportUnit, snap *release.Snapshot, branch string) error {
	slog.Info("migrating package", "package", unit.Package, "from", unit.CurrentTag,
		"to", unit.SVNTag, "release", snap.Release.Name)

	// Wipe before checkout so files deleted upstream disappear.
	if err := e.repo.RemovePath(unit.Package); err != nil {
		return err
	}
	if err := e.repo.CheckoutPathsFromTag(unit.ImportTag, unit.Package); err != nil {
		return err
	}
	// ChangeLog files stay on the import tags but not on release
	// branches.
	if err := e.repo.RemoveFile(path.Join(unit.Package, "ChangeLog")); err != nil {
		return err
	}
	if err := e.repo.AddAll(); err != nil {
		return err
	}
	staged, err := e.repo.HasStagedChanges()
	if err != nil {
		return err
	}
	if !staged {
		// No content difference: mark the unit done without a commit
		// so it is never reconsidered.
		slog.Warn("no changes staged, tagging and skipping commit",
			"package", unit.Package, "release", snap.Release.Name)
		if err := e.repo.CreateTag(unit.BranchTag); err != nil {
			return err
		}
		return e.retireMarker(unit.CurrentTag)
	}

	meta, ok := e.cache.Get(unit.PackageName, unit.SVNTag, unit.Revision)
	if !ok {
		return fmt.Errorf("metadata missing for %s %s r%d", unit.PackageName, unit.SVNTag, unit.Revision)
	}
	msg := meta.Message
	if unit.SVNTag == release.TrunkTag {
		msg += fmt.Sprintf(" (trunk r%d)", meta.Revision)
	} else {
		msg += fmt.Sprintf(" (%s)", unit.SVNTag)
	}
	authorDate := parseDate(meta.Date)
	author := gitrepo.Signature{
		Name:  e.authors.Get(meta.Author).Name,
		Email: e.authors.Get(meta.Author).Email,
		When:  authorDate,
	}
	committer := e.opts.Committer
	committer.When = e.committerDate(snap, authorDate)
	if err := e.repo.Commit(msg, author, committer, false); err != nil {
		return err
	}
	if err := e.repo.CreateTag(unit.BranchTag); err != nil {
		return err
	}
	if err := e.retireMarker(unit.CurrentTag); err != nil {
		return err
	}
	slog.Info("committed package", "package", unit.Package, "tag", unit.SVNTag,
		"branch", branch, "release", snap.Release.Name)
	return nil
}

// retire resolves packages the branch carries but the release no
// longer mentions: keep them at the base version, revert them to it,
// or delete them when no base version exists.
func (e *Engine) retire(snap *release.Snapshot, branch string,
	markers map[string]ledger.Marker, considered map[string]bool,
) (int, error) {
	names := make([]string, 0, len(markers))
	for name := range markers {
		if !considered[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	retired := 0
	for _, name := range names {
		marker := markers[name]
		if e.opts.BaseRelease != nil {
			basePath, baseTag, ok := e.opts.BaseRelease.TagByName(name)
			if ok {
				if baseTag == marker.SVNTag {
					slog.Debug("package remains at base release version",
						"package", name, "tag", baseTag)
					continue
				}
				slog.Info("package removed from cache, reverting to base version",
					"package", name, "tag", baseTag)
				if err := e.revertToBase(snap, branch, name, basePath, baseTag, marker); err != nil {
					return retired, err
				}
				retired++
				continue
			}
			slog.Info("package removed from cache and absent from base release", "package", name)
		} else {
			slog.Info("package removed from release", "package", name)
		}
		if err := e.removePackage(snap, branch, name, marker); err != nil {
			return retired, err
		}
		retired++
	}
	return retired, nil
}

func (e *Engine) revertToBase(snap *release.Snapshot, branch, name, basePath, baseTag string,
	marker ledger.Marker,
) error {
	revs := e.cache.Revisions(name, baseTag)
	if len(revs) == 0 {
		slog.Warn("no metadata for base version, leaving package untouched",
			"package", name, "tag", baseTag)
		return nil
	}
	rev := revs[0]
	unit := ImportUnit{
		Package:     basePath,
		PackageName: name,
		SVNTag:      baseTag,
		Revision:    rev,
		ImportTag:   ledger.ImportTag(basePath, baseTag, rev),
		BranchTag:   ledger.BranchImportTag(branch, basePath, baseTag, rev),
		CurrentTag:  marker.GitTag,
	}
	return e.applyUnit(unit, snap, branch)
}

func (e *Engine) removePackage(snap *release.Snapshot, branch, name string, marker ledger.Marker) error {
	entry := e.cache.Package(name)
	if entry == nil {
		slog.Warn("cannot locate path for removed package, leaving in place", "package", name)
		return nil
	}
	pkgPath := path.Join(entry.Path, name)
	slog.Info("removing package from branch", "package", pkgPath, "branch", branch)
	if err := e.repo.RemovePath(pkgPath); err != nil {
		return err
	}
	if err := e.repo.AddAll(); err != nil {
		return err
	}
	committer := e.opts.Committer
	committer.When = e.committerDate(snap, time.Now())
	msg := fmt.Sprintf("%s deleted from %s", pkgPath, branch)
	if err := e.repo.Commit(msg, committer, committer, true); err != nil {
		return err
	}
	return e.retireMarker(marker.GitTag)
}

func (e *Engine) retireMarker(tag string) error {
	if tag == "" {
		return nil
	}
	return e.repo.DeleteTag(tag)
}

func (e *Engine) committerDate(snap *release.Snapshot, authorDate time.Time) time.Time {
	switch e.opts.CommitDate {
	case CommitDateRelease:
		return time.Unix(snap.Release.Timestamp, 0)
	case CommitDateAuthor:
		return authorDate
	default:
		return time.Now()
	}
}

func (e *Engine) tagger(snap *release.Snapshot) gitrepo.Signature {
	sig := e.opts.Committer
	sig.When = e.committerDate(snap, time.Now())
	return sig
}

// parseDate reads the ISO-8601 timestamps the metadata cache stores,
// falling back to the epoch when a historical entry is malformed.
func parseDate(date string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return t
		}
	}
	return time.Unix(0, 0)
}
