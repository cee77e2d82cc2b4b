package db

import (
	"context"
	"strconv"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/technopolitica/pgdiff/internal/container"
	"github.com/technopolitica/pgdiff/internal/domain"
)

const readyLogPattern = ".*database system is ready to accept connections.*"

type ReferenceOptions struct {
	Image          string
	StartupTimeout time.Duration
	// ReadyOccurrences is how often the ready log line has to appear. Images
	// that run init scripts on a temporary server print it twice.
	ReadyOccurrences int
	Labels           map[string]string
	Logger           container.Logger
}

// ReferenceDB is the vanilla database the setup procedures populate.
type ReferenceDB struct {
	env    *container.Environment
	logger container.Logger
}

func NewReferenceDB(opts ReferenceOptions) *ReferenceDB {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	env := container.New(container.Spec{
		Name:  "reference database",
		Image: opts.Image,
		Env: map[string]string{
			"PGUSER":            Username,
			"POSTGRES_PASSWORD": Password,
		},
		Labels:    opts.Labels,
		Network:   container.NewNetwork(Alias),
		Readiness: container.LogPattern(readyLogPattern, opts.ReadyOccurrences, opts.StartupTimeout),
		Logger:    opts.Logger,
	})
	return &ReferenceDB{env: env, logger: opts.Logger}
}

// Start returns a *domain.StartupFailure if the database does not report
// readiness in time. Whatever was created up to that point is released.
func (db *ReferenceDB) Start(ctx context.Context) error {
	db.logger.Info("starting reference database", log.String("image", db.env.Image()))
	if err := db.env.Start(ctx); err != nil {
		if stopErr := db.env.Stop(ctx); stopErr != nil {
			db.logger.Error("failed to clean up reference database", log.Error(stopErr))
		}
		return &domain.StartupFailure{Environment: db.env.Name(), Image: db.env.Image(), Err: err}
	}
	return nil
}

func (db *ReferenceDB) Stop(ctx context.Context) error {
	return db.env.Stop(ctx)
}

// Environment is what dependent environments join the network of.
func (db *ReferenceDB) Environment() *container.Environment {
	return db.env
}

// ConnectionURL addresses dbName on the reference database from inside the
// run's network.
func (db *ReferenceDB) ConnectionURL(dbName string) ConnectionURL {
	return NewConnectionURL(Alias, PGPort, dbName)
}

// ConnectionEnv is the libpq environment pointing at the maintenance
// database of the reference server.
func (db *ReferenceDB) ConnectionEnv() map[string]string {
	return map[string]string{
		"PGUSER":     Username,
		"PGHOST":     Alias,
		"PGPASSWORD": Password,
		"PGDATABASE": MaintenanceDB,
		"PGPORT":     strconv.Itoa(PGPort.Int()),
	}
}
