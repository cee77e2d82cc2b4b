// pgdiff computes the SQL needed to migrate a target postgres database to the
// state produced by a sequence of setup images.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-appkit/log"
	"github.com/spf13/afero"
	cli "github.com/urfave/cli/v2"

	"github.com/technopolitica/pgdiff/internal/config"
	"github.com/technopolitica/pgdiff/internal/diff"
)

var errMissingOutputDir = errors.New("missing required argument <output-dir>")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pgdiff: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pgdiff",
		Usage: "Diff a postgres database against the result of running setup images.",
		Description: "Settings are read from the environment: SETUP_IMAGES (required), SCHEMAS, DB_URI, " +
			"PG_IMAGE, MIGRA_IMAGE, TARGET_NETWORK, STARTUP_TIMEOUT, SETUP_TIMEOUT, PG_READY_OCCURRENCES, " +
			"LOG_LEVEL and LOG_FORMAT.",
		Commands: []*cli.Command{
			{
				Name:        "diff",
				Usage:       "Write the diff into an existing directory.",
				ArgsUsage:   "<output-dir>",
				Description: "Writes full_db.sql, or <schema>.sql for every schema in SCHEMAS that differs.",
				Action:      runDiff,
			},
		},
	}
}

func runDiff(c *cli.Context) error {
	switch {
	case c.NArg() == 0:
		_ = cli.ShowSubcommandHelp(c)
		return errMissingOutputDir
	case c.NArg() > 1:
		_ = cli.ShowSubcommandHelp(c)
		return fmt.Errorf("expected one argument, got %d", c.NArg())
	}
	outDir := c.Args().First()
	fs := afero.NewOsFs()
	if err := diff.CheckOutputDir(fs, outDir); err != nil {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger, loggerClose := log.NewLogger(&cfg.Log)
	defer loggerClose()

	logger.Info("diffing database",
		log.String("db", cfg.DBName),
		log.Int("setup_images", len(cfg.SetupImages)),
		log.Int("schemas", len(cfg.Schemas)),
	)
	if err = diff.NewController(cfg, logger, diff.WithFs(fs)).Diff(c.Context, outDir); err != nil {
		return fmt.Errorf("failed to diff %s: %w", cfg.DBName, err)
	}
	return nil
}
