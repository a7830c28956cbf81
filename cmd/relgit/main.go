package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/greatliontech/relgit/pkg/config"
	"github.com/urfave/cli/v3"
)

var version = "0.0.0-dev"

func main() {
	cmd := &cli.Command{
		Name:    "relgit",
		Usage:   "Reconcile git branches and tags with SVN release snapshots",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("RELGIT_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			buildBranchCommand(),
			scanTagsCommand(),
			tagEvolutionCommand(),
			orderReleasesCommand(),
			mergeReleasesCommand(),
			pkgDiffCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("relgit failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and installs the default
// logger. Commands call it first so flag handling runs under the
// configured log level.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	c := &config.Config{}
	if f := cmd.String("config"); f != "" {
		loaded, err := config.FromFile(f)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	logLevel := new(slog.Level)
	*logLevel = slog.LevelInfo
	if c.LogLevel != "" {
		if err := logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, err
		}
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler).With("run", uuid.NewString()))

	return c, nil
}
