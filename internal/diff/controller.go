// Package diff orchestrates a diff run: it stands up the reference database
// and migra, runs the setup images against the reference database and writes
// the resulting SQL to disk.
package diff

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/technopolitica/pgdiff/internal/config"
	"github.com/technopolitica/pgdiff/internal/db"
)

// RunLabel is set on every container and network of a run.
const RunLabel = "pgdiff.run"

const defaultTeardownTimeout = 2 * time.Minute

type referenceDatabase interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type differ interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	DiffFull(ctx context.Context) (string, error)
	DiffSchema(ctx context.Context, schema string) (string, error)
}

type setupRunner interface {
	Image() string
	Run(ctx context.Context) (string, error)
}

type components struct {
	db     referenceDatabase
	differ differ
	setups []setupRunner
}

type componentsFactory func(cfg config.Config, labels map[string]string, logger log.FieldLogger) components

type Controller struct {
	cfg             config.Config
	logger          log.FieldLogger
	fs              afero.Fs
	teardownTimeout time.Duration
	newComponents   componentsFactory
}

type Option func(*Controller)

// WithFs replaces the filesystem diffs are written to.
func WithFs(fs afero.Fs) Option {
	return func(c *Controller) {
		c.fs = fs
	}
}

// WithTeardownTimeout bounds how long stopping the environments may take.
func WithTeardownTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.teardownTimeout = timeout
	}
}

func NewController(cfg config.Config, logger log.FieldLogger, opts ...Option) *Controller {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	c := &Controller{
		cfg:             cfg,
		logger:          logger,
		fs:              afero.NewOsFs(),
		teardownTimeout: defaultTeardownTimeout,
		newComponents:   dockerComponents,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func dockerComponents(cfg config.Config, labels map[string]string, logger log.FieldLogger) components {
	ref := db.NewReferenceDB(db.ReferenceOptions{
		Image:            cfg.PGImage,
		StartupTimeout:   cfg.StartupTimeout,
		ReadyOccurrences: cfg.PGReadyOccurrences,
		Labels:           labels,
		Logger:           logger,
	})
	migra := NewMigra(ref, MigraOptions{
		Image:         cfg.MigraImage,
		TargetURL:     cfg.TargetURL(),
		DBName:        cfg.DBName,
		TargetNetwork: cfg.TargetNetwork,
		Labels:        labels,
		Logger:        logger,
	})
	setups := make([]setupRunner, 0, len(cfg.SetupImages))
	for _, image := range cfg.SetupImages {
		setups = append(setups, db.NewSetupRunner(ref, db.SetupOptions{
			Image:   image,
			Timeout: cfg.SetupTimeout,
			Labels:  labels,
			Logger:  logger,
		}))
	}
	return components{db: ref, differ: migra, setups: setups}
}

// Diff runs the setup images against a fresh reference database and writes
// its diff against the target into outDir, which must exist. Without schemas
// full_db.sql is always written; with schemas one <schema>.sql is written per
// schema that has differences.
//
// Once the reference database is up, migra and the reference database are
// stopped on every return path. Errors from stopping them are appended to
// the error that ended the run.
func (c *Controller) Diff(ctx context.Context, outDir string) (err error) {
	if err = CheckOutputDir(c.fs, outDir); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := c.logger.With(log.String("run", runID))
	comps := c.newComponents(c.cfg, map[string]string{RunLabel: runID}, logger)

	if err = comps.db.Start(ctx); err != nil {
		return err
	}
	if err = comps.differ.Start(ctx); err != nil {
		if stopErr := c.stopAll(ctx, comps.db); stopErr != nil {
			logger.Error("teardown failed", log.Error(stopErr))
			err = multierror.Append(err, stopErr)
		}
		return err
	}
	defer func() {
		if stopErr := c.stopAll(ctx, comps.differ, comps.db); stopErr != nil {
			logger.Error("teardown failed", log.Error(stopErr))
			if err == nil {
				err = stopErr
			} else {
				err = multierror.Append(err, stopErr)
			}
		}
	}()

	for _, setup := range comps.setups {
		logs, err := setup.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("db setup output", log.String("image", setup.Image()), log.String("logs", logs))
	}

	if c.cfg.Schemas == nil {
		return c.writeFull(ctx, logger, comps.differ, outDir)
	}
	return c.writeSchemas(ctx, logger, comps.differ, outDir)
}

func (c *Controller) writeFull(ctx context.Context, logger log.FieldLogger, d differ, outDir string) error {
	sql, err := d.DiffFull(ctx)
	if err != nil {
		return fmt.Errorf("failed to diff database: %w", err)
	}
	path, err := writeSQL(c.fs, outDir, FullDBFile, sql)
	if err != nil {
		return err
	}
	logger.Info("wrote full diff", log.String("file", path))
	return nil
}

func (c *Controller) writeSchemas(ctx context.Context, logger log.FieldLogger, d differ, outDir string) error {
	for _, schema := range c.cfg.Schemas {
		sql, err := d.DiffSchema(ctx, schema)
		if err != nil {
			return fmt.Errorf("failed to diff schema %s: %w", schema, err)
		}
		if IsBlank(sql) {
			logger.Info("no diff for schema", log.String("schema", schema))
			continue
		}
		path, err := writeSQL(c.fs, outDir, SchemaFile(schema), sql)
		if err != nil {
			return err
		}
		logger.Info("wrote schema diff", log.String("schema", schema), log.String("file", path))
	}
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopAll stops every stopper in order, even when an earlier one fails. It
// runs detached from ctx so that an interrupted run is still cleaned up.
func (c *Controller) stopAll(ctx context.Context, stoppers ...stopper) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.teardownTimeout)
	defer cancel()
	var result *multierror.Error
	for _, s := range stoppers {
		if err := s.Stop(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
