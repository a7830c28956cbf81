package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/greatliontech/relgit/internal/gitrepo"
	"github.com/greatliontech/relgit/internal/metadata"
	"github.com/greatliontech/relgit/internal/reconcile"
	"github.com/greatliontech/relgit/internal/release"
	"github.com/greatliontech/relgit/internal/util"
	"github.com/greatliontech/relgit/pkg/config"
	"github.com/urfave/cli/v3"
)

func buildBranchCommand() *cli.Command {
	return &cli.Command{
		Name:      "build-branch",
		Usage:     "Replay release snapshots onto a git branch",
		ArgsUsage: "REPO BRANCH TAGFILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "parent-branch",
				Usage: "Branch point as BRANCH:COMMIT, BRANCH:@TIMESTAMP or BRANCH:@FILE",
			},
			&cli.StringFlag{
				Name:  "base-release",
				Usage: "Base release snapshot used to resolve packages dropped by caches",
			},
			&cli.StringFlag{
				Name:  "metadata-cache",
				Usage: "Tag metadata cache file (default REPO.svn.metadata)",
			},
			&cli.StringFlag{
				Name:  "author-cache",
				Usage: "Author cache file (default REPO.author.metadata)",
			},
			&cli.StringFlag{
				Name:  "author-domain",
				Usage: "Mail domain for unresolved authors",
			},
			&cli.StringFlag{
				Name:  "commit-date",
				Value: string(reconcile.CommitDateRelease),
				Usage: "Committer date mode: now, release or author",
			},
			&cli.BoolFlag{
				Name:  "skip-release-tag",
				Usage: "Do not create release tags or skip already-tagged releases",
			},
			&cli.BoolFlag{
				Name:  "only-forward",
				Usage: "Never move a package back to an older tag; drop backskip releases",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Log intended repository mutations without applying them",
			},
		},
		Action: runBuildBranch,
	}
}

func runBuildBranch(ctx context.Context, cmd *cli.Command) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	args := cmd.Args().Slice()
	if len(args) < 3 {
		return fmt.Errorf("build-branch needs REPO, BRANCH and at least one tag file")
	}
	repoPath, branch, files := args[0], args[1], args[2:]

	cachePath := cmd.String("metadata-cache")
	if cachePath == "" {
		cachePath = strings.TrimSuffix(repoPath, "/") + ".svn.metadata"
	}
	if _, err := os.Stat(cachePath); err != nil {
		return fmt.Errorf("metadata cache %s unavailable, run scan-tags first: %w", cachePath, err)
	}
	cache, err := metadata.Load(cachePath)
	if err != nil {
		return err
	}

	authors, err := loadAuthorCache(cmd, conf, repoPath)
	if err != nil {
		return err
	}

	series, err := loadSnapshots(files)
	if err != nil {
		return err
	}
	series.SortChronological()
	if cmd.Bool("only-forward") {
		series = series.FilterBackskips()
	}

	opts := reconcile.Options{
		ParentBranch:   cmd.String("parent-branch"),
		SkipReleaseTag: cmd.Bool("skip-release-tag"),
		OnlyForward:    cmd.Bool("only-forward"),
		CommitDate:     reconcile.CommitDateMode(cmd.String("commit-date")),
	}
	if f := cmd.String("base-release"); f != "" {
		base, err := release.Load(f)
		if err != nil {
			return err
		}
		opts.BaseRelease = base
	}

	var repo gitrepo.Repo
	local, err := gitrepo.Open(repoPath, gitrepo.WithRetry(retryPolicy(conf)))
	if err != nil {
		return err
	}
	repo = local
	if cmd.Bool("dry-run") {
		repo = &gitrepo.DryRun{Underlying: local}
	}

	return reconcile.New(repo, cache, authors, opts).Run(ctx, branch, series)
}

func loadAuthorCache(cmd *cli.Command, conf *config.Config, repoPath string) (*metadata.Authors, error) {
	domain := cmd.String("author-domain")
	if domain == "" {
		domain = conf.AuthorDomain
	}
	if domain == "" {
		domain = "localhost"
	}
	authorPath := cmd.String("author-cache")
	if authorPath == "" {
		authorPath = strings.TrimSuffix(repoPath, "/") + ".author.metadata"
	}
	if _, err := os.Stat(authorPath); err != nil {
		slog.Warn("author cache unavailable, using bare identities", "path", authorPath)
	}
	return metadata.LoadAuthors(authorPath, domain)
}

func retryPolicy(conf *config.Config) util.RetryPolicy {
	p := util.DefaultRetry
	if conf.Retry.Attempts > 0 {
		p.Attempts = conf.Retry.Attempts
	}
	if conf.Retry.Wait > 0 {
		p.Wait = time.Duration(conf.Retry.Wait)
	}
	return p
}

// loadSnapshots reads each file as a JSON snapshot, falling back to
// the plain tag-file format.
func loadSnapshots(files []string) (release.Series, error) {
	var series release.Series
	for _, f := range files {
		snap, err := release.Load(f)
		if err != nil {
			snap, err = release.ParseTagFile(f, "")
		}
		if err != nil {
			return nil, fmt.Errorf("loading release %s: %w", f, err)
		}
		series = append(series, snap)
	}
	return series, nil
}
