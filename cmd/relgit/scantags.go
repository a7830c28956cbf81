package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/greatliontech/relgit/internal/metadata"
	"github.com/greatliontech/relgit/internal/release"
	"github.com/greatliontech/relgit/internal/svnsource"
	"github.com/urfave/cli/v3"
)

func scanTagsCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan-tags",
		Usage:     "Populate the metadata and author caches from the source repository",
		ArgsUsage: "TAGFILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "svn-root",
				Usage:   "Source repository root URL",
				Sources: cli.EnvVars("RELGIT_SVN_ROOT"),
			},
			&cli.StringFlag{
				Name:  "metadata-cache",
				Value: "svn.metadata",
				Usage: "Tag metadata cache file",
			},
			&cli.StringFlag{
				Name:  "author-cache",
				Value: "author.metadata",
				Usage: "Author cache file",
			},
			&cli.StringFlag{
				Name:  "author-domain",
				Usage: "Mail domain for unresolved authors",
			},
			&cli.BoolFlag{
				Name:  "all-tags",
				Usage: "Scan every tag newer than the oldest referenced one",
			},
			&cli.IntFlag{
				Name:  "trim-tags",
				Usage: "Keep only the newest N referenced tags per package",
			},
		},
		Action: runScanTags,
	}
}

func runScanTags(ctx context.Context, cmd *cli.Command) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("scan-tags needs at least one tag file")
	}
	root := cmd.String("svn-root")
	if root == "" {
		root = conf.SVNRoot
	}
	if root == "" {
		return fmt.Errorf("no source repository root given")
	}

	series, err := loadSnapshots(files)
	if err != nil {
		return err
	}
	packages := referencedTags(series, int(cmd.Int("trim-tags")))

	cache, err := metadata.Load(cmd.String("metadata-cache"))
	if err != nil {
		return err
	}
	domain := cmd.String("author-domain")
	if domain == "" {
		domain = conf.AuthorDomain
	}
	authors, err := metadata.LoadAuthors(cmd.String("author-cache"), domain)
	if err != nil {
		return err
	}

	client := svnsource.New(root, svnsource.WithRetry(retryPolicy(conf)))
	resolver := metadata.DomainResolver{Domain: domain}
	scanner := metadata.NewScanner(client, client, resolver, cache, authors)
	if err := scanner.Scan(ctx, packages, cmd.Bool("all-tags")); err != nil {
		return err
	}

	if err := cache.Persist(cmd.String("metadata-cache"), time.Now()); err != nil {
		return err
	}
	return authors.Persist(cmd.String("author-cache"))
}

// referencedTags collects each package's tags across the snapshots,
// oldest first. With trim > 0, only the newest trim tags are kept.
func referencedTags(series release.Series, trim int) map[string][]string {
	packages := map[string]map[string]bool{}
	for _, snap := range series {
		for pkgPath, tag := range snap.Packages {
			if packages[pkgPath] == nil {
				packages[pkgPath] = map[string]bool{}
			}
			packages[pkgPath][tag] = true
		}
	}
	out := make(map[string][]string, len(packages))
	for pkgPath, tags := range packages {
		list := make([]string, 0, len(tags))
		for tag := range tags {
			list = append(list, tag)
		}
		sort.Slice(list, func(i, j int) bool {
			return release.CompareTags(list[i], list[j]) < 0
		})
		if trim > 0 && len(list) > trim {
			list = list[len(list)-trim:]
		}
		out[pkgPath] = list
	}
	return out
}
