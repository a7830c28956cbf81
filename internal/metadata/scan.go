package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/greatliontech/relgit/internal/release"
)

// ErrAnchorNotFound is fatal: an "all tags since" expansion was asked
// to anchor on a tag the source VCS does not list for the package.
var ErrAnchorNotFound = errors.New("oldest tag anchor not found in source VCS")

// TagLister enumerates a package's tags in the source VCS, ending with
// the synthetic trunk entry.
type TagLister interface {
	ListTags(ctx context.Context, pkgPath string) ([]string, error)
}

// Fetcher retrieves the commit metadata behind one package tag.
type Fetcher interface {
	PathMetadata(ctx context.Context, pkgPath, tag string) (TagMetadata, error)
}

// AuthorResolver maps a source-VCS user name to a full identity.
type AuthorResolver interface {
	ResolveAuthor(ctx context.Context, user string) (AuthorInfo, error)
}

// Scanner populates the metadata and author caches from the source
// VCS. Already-cached tags are never re-queried; trunk always is,
// since its content keeps moving.
type Scanner struct {
	lister   TagLister
	fetcher  Fetcher
	resolver AuthorResolver
	cache    *Cache
	authors  *Authors
}

func NewScanner(lister TagLister, fetcher Fetcher, resolver AuthorResolver,
	cache *Cache, authors *Authors,
) *Scanner {
	return &Scanner{lister: lister, fetcher: fetcher, resolver: resolver,
		cache: cache, authors: authors}
}

// Scan fetches metadata for each package's tags. With allTags set,
// every tag the source VCS lists after the first (oldest) given tag is
// included as well; that anchor tag must exist or the scan is
// abandoned. A single tag's failed fetch is recoverable: it is logged
// and skipped, leaving the cache untouched.
func (s *Scanner) Scan(ctx context.Context, packages map[string][]string, allTags bool) error {
	names := make([]string, 0, len(packages))
	for pkg := range packages {
		names = append(names, pkg)
	}
	sort.Strings(names)

	for _, pkg := range names {
		tags := packages[pkg]
		slog.Info("preparing package", "package", pkg, "baseTags", len(tags))
		if allTags && len(tags) > 0 {
			expanded, err := s.expandSinceOldest(ctx, pkg, tags)
			if err != nil {
				return err
			}
			tags = expanded
		}
		tags = dedupeSorted(tags)
		for _, tag := range tags {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.scanTag(ctx, pkg, tag)
		}
	}
	return nil
}

// expandSinceOldest appends every source-VCS tag younger than the
// first given tag, which anchors the expansion and must exist.
func (s *Scanner) expandSinceOldest(ctx context.Context, pkg string, tags []string) ([]string, error) {
	oldest := tags[0]
	all, err := s.lister.ListTags(ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("listing tags for %s: %w", pkg, err)
	}
	idx := -1
	for i, t := range all {
		if t == oldest {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s for package %s", ErrAnchorNotFound, oldest, pkg)
	}
	return append(tags, all[idx+1:]...), nil
}

// scanTag ensures metadata for one tag is cached. Failures here are
// per-tag warnings, never fatal: the cache stays exactly as it was.
func (s *Scanner) scanTag(ctx context.Context, pkg, tag string) {
	name := release.PackageName(pkg)
	parent := path.Dir(pkg)

	var meta TagMetadata
	switch {
	case tag == release.TrunkTag:
		// Trunk must be re-queried for its current revision.
		fetched, err := s.fetcher.PathMetadata(ctx, pkg, tag)
		if err != nil {
			slog.Warn("failed to get metadata", "package", pkg, "tag", tag, "err", err)
			return
		}
		meta = fetched
		s.cache.Record(name, parent, tag, meta)
	case s.cache.HasTag(name, tag):
		revs := s.cache.Revisions(name, tag)
		meta, _ = s.cache.Get(name, tag, revs[0])
	default:
		fetched, err := s.fetcher.PathMetadata(ctx, pkg, tag)
		if err != nil {
			slog.Warn("failed to get metadata", "package", pkg, "tag", tag, "err", err)
			return
		}
		meta = fetched
		s.cache.Record(name, parent, tag, meta)
	}
	s.recordAuthor(ctx, pkg, meta.Author)
}

func (s *Scanner) recordAuthor(ctx context.Context, pkg, user string) {
	if user == "" || s.authors.Has(user) {
		return
	}
	if s.resolver != nil {
		info, err := s.resolver.ResolveAuthor(ctx, user)
		if err == nil {
			s.authors.Record(user, info)
			return
		}
		slog.Info("failed to resolve author, synthesising identity",
			"package", pkg, "author", user, "err", err)
	}
	s.authors.Record(user, s.authors.Get(user))
}

// dedupeSorted removes duplicates and orders tags chronologically,
// trunk last.
func dedupeSorted(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return release.CompareTags(out[i], out[j]) < 0
	})
	return out
}
