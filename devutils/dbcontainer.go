// Package devutils provides the docker fixtures integration specs diff
// against: a target database living in a container and setup images built
// from a local directory.
package devutils

import (
	"context"
	"embed"
	"fmt"
	"strconv"

	"github.com/docker/go-connections/nat"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/technopolitica/pgdiff/internal/db"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const TargetImage = "docker.io/postgres:16-alpine"

// TargetDB is a postgres server standing in for a deployed database. It is
// reachable from the host through a mapped port and from other containers on
// its network through its alias.
type TargetDB struct {
	container *postgres.PostgresContainer
	alias     string
	dbName    string
}

func StartTargetDB(ctx context.Context, nw *testcontainers.DockerNetwork, alias string, dbName string) (target TargetDB, err error) {
	container, err := postgres.Run(ctx, TargetImage,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(db.Username),
		postgres.WithPassword(db.Password),
		network.WithNetwork([]string{alias}, nw),
		testcontainers.WithWaitStrategy(wait.ForSQL(db.PGPort, "pgx", func(host string, port nat.Port) string {
			return db.NewConnectionURL(host, port, dbName).String()
		})),
	)
	target = TargetDB{container: container, alias: alias, dbName: dbName}
	if err != nil {
		err = fmt.Errorf("failed to initialize target database: %w", err)
		return
	}
	return
}

// URI addresses the target from containers on its network, in the scheme-less
// form DB_URI accepts.
func (target TargetDB) URI() string {
	return fmt.Sprintf("%s:%s@%s:%d/%s", db.Username, db.Password, target.alias, db.PGPort.Int(), target.dbName)
}

func (target TargetDB) ExternalConnectionURL(ctx context.Context) (connectionURL db.ConnectionURL, err error) {
	host, err := target.container.Host(ctx)
	if err != nil {
		err = fmt.Errorf("failed to fetch target host: %w", err)
		return
	}
	port, err := target.container.MappedPort(ctx, db.PGPort)
	if err != nil {
		err = fmt.Errorf("failed to fetch target port: %w", err)
		return
	}
	connectionURL = db.NewConnectionURL(host, port, target.dbName)
	return
}

// MigrateTo applies the embedded migrations up to version, or all of them
// for "latest". No version table is written, so the target holds nothing
// but the migrated schema.
func (target TargetDB) MigrateTo(ctx context.Context, version string) (err error) {
	connectionURL, err := target.ExternalConnectionURL(ctx)
	if err != nil {
		return
	}
	conn, err := goose.OpenDBWithDriver("pgx", connectionURL.String())
	if err != nil {
		return fmt.Errorf("failed to connect with database: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close database connection: %w", closeErr)).ErrorOrNil()
		}
	}()

	goose.SetBaseFS(Migrations)
	if err = goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if version == "latest" {
		err = goose.UpContext(ctx, conn, "migrations", goose.WithNoVersioning())
		return
	}
	versionInt, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("failed to parse version: %w", err)
	}
	err = goose.UpToContext(ctx, conn, "migrations", versionInt, goose.WithNoVersioning())
	return
}

// SchemaExists reports whether schema is present on the target.
func (target TargetDB) SchemaExists(ctx context.Context, schema string) (exists bool, err error) {
	connectionURL, err := target.ExternalConnectionURL(ctx)
	if err != nil {
		return
	}
	conn, err := pgx.Connect(ctx, connectionURL.String())
	if err != nil {
		err = fmt.Errorf("failed to connect with database: %w", err)
		return
	}
	defer conn.Close(ctx)
	err = conn.QueryRow(ctx, "select exists(select 1 from information_schema.schemata where schema_name = $1)", schema).Scan(&exists)
	return
}

func (target TargetDB) Terminate(ctx context.Context) error {
	if target.container == nil {
		return nil
	}
	return target.container.Terminate(ctx)
}
