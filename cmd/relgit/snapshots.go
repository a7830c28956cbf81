package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/greatliontech/relgit/internal/diff"
	"github.com/greatliontech/relgit/internal/release"
	"github.com/urfave/cli/v3"
)

func tagEvolutionCommand() *cli.Command {
	return &cli.Command{
		Name:      "tag-evolution",
		Usage:     "Compute the release-to-release package evolution",
		ArgsUsage: "TAGFILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "tagEvolution.json",
				Usage:   "Evolution output file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			series, err := loadSnapshots(cmd.Args().Slice())
			if err != nil {
				return err
			}
			series.SortChronological()
			entries, err := diff.BuildEvolution(series)
			if err != nil {
				return err
			}
			return diff.WriteEvolution(cmd.String("output"), entries)
		},
	}
}

func orderReleasesCommand() *cli.Command {
	return &cli.Command{
		Name:      "order-releases",
		Usage:     "Print release snapshot files in chronological order",
		ArgsUsage: "TAGFILE...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			files := cmd.Args().Slice()
			series, err := loadSnapshots(files)
			if err != nil {
				return err
			}
			byName := map[string]string{}
			for i, snap := range series {
				byName[snap.Release.Name] = files[i]
			}
			series.SortChronological()
			for _, snap := range series {
				fmt.Println(byName[snap.Release.Name])
			}
			return nil
		},
	}
}

func mergeReleasesCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge-releases",
		Usage:     "Union snapshots into a super-release",
		ArgsUsage: "TARGET MERGE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "merged.json",
				Usage:   "Merged snapshot output file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			args := cmd.Args().Slice()
			if len(args) < 2 {
				return fmt.Errorf("merge-releases needs a target and at least one snapshot to merge")
			}
			target, err := release.Load(args[0])
			if err != nil {
				return err
			}
			for _, f := range args[1:] {
				snap, err := release.Load(f)
				if err != nil {
					return err
				}
				for _, pkg := range target.Merge(snap) {
					slog.Info("merged package", "package", pkg, "from", f)
				}
			}
			return target.Write(cmd.String("output"))
		},
	}
}

func pkgDiffCommand() *cli.Command {
	return &cli.Command{
		Name:      "pkg-diff",
		Usage:     "Compare the packages of two release snapshots",
		ArgsUsage: "{missing|versions} FILE1 FILE2",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			args := cmd.Args().Slice()
			if len(args) != 3 {
				return fmt.Errorf("pkg-diff needs a mode and two snapshot files")
			}
			mode := args[0]
			first, err := release.Load(args[1])
			if err != nil {
				return err
			}
			second, err := release.Load(args[2])
			if err != nil {
				return err
			}
			switch mode {
			case "missing":
				printMissing(first, second)
			case "versions":
				printVersionDiffs(first, second)
			default:
				return fmt.Errorf("unknown pkg-diff mode %q", mode)
			}
			return nil
		},
	}
}

func printMissing(first, second *release.Snapshot) {
	for _, line := range missingPackages(first, second) {
		fmt.Printf("only in %s: %s\n", first.Release.Name, line)
	}
	for _, line := range missingPackages(second, first) {
		fmt.Printf("only in %s: %s\n", second.Release.Name, line)
	}
}

// missingPackages lists packages of a that b does not carry.
func missingPackages(a, b *release.Snapshot) []string {
	var out []string
	for pkgPath := range a.Packages {
		if _, ok := b.Packages[pkgPath]; !ok {
			out = append(out, pkgPath)
		}
	}
	sort.Strings(out)
	return out
}

func printVersionDiffs(first, second *release.Snapshot) {
	var paths []string
	for pkgPath := range first.Packages {
		paths = append(paths, pkgPath)
	}
	sort.Strings(paths)
	for _, pkgPath := range paths {
		tag, ok := second.Packages[pkgPath]
		if !ok || tag == first.Packages[pkgPath] {
			continue
		}
		fmt.Printf("%s: %s -> %s\n", pkgPath, first.Packages[pkgPath], tag)
	}
}
