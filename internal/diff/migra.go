package diff

import (
	"context"
	"strings"

	"github.com/acronis/go-appkit/log"

	"github.com/technopolitica/pgdiff/internal/container"
	"github.com/technopolitica/pgdiff/internal/db"
	"github.com/technopolitica/pgdiff/internal/domain"
)

// migra exits with 2 when it found differences.
var migraExitCodes = []int{0, 2}

type MigraOptions struct {
	Image string
	// TargetURL is the database the reference database is compared to.
	TargetURL string
	// DBName is the database compared on the reference server.
	DBName string
	// TargetNetwork is joined in addition to the reference database's network.
	TargetNetwork string
	Labels        map[string]string
	Logger        container.Logger
}

// Migra keeps a migra container idle next to the reference database and
// execs comparisons in it on demand.
type Migra struct {
	env       *container.Environment
	sourceURL string
	targetURL string
	logger    container.Logger
}

func NewMigra(ref *db.ReferenceDB, opts MigraOptions) *Migra {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	var extraNetworks []string
	if opts.TargetNetwork != "" {
		extraNetworks = append(extraNetworks, opts.TargetNetwork)
	}
	env := container.New(container.Spec{
		Name:          "migra",
		Image:         opts.Image,
		Cmd:           []string{"tail", "-f", "/dev/null"},
		Labels:        opts.Labels,
		Network:       container.JoinNetworkOf(ref.Environment()),
		ExtraNetworks: extraNetworks,
		Readiness:     container.Running(),
		Logger:        opts.Logger,
	})
	return &Migra{
		env:       env,
		sourceURL: ref.ConnectionURL(opts.DBName).String(),
		targetURL: opts.TargetURL,
		logger:    opts.Logger,
	}
}

func (m *Migra) Start(ctx context.Context) error {
	m.logger.Info("starting migra", log.String("image", m.env.Image()))
	if err := m.env.Start(ctx); err != nil {
		if stopErr := m.env.Stop(ctx); stopErr != nil {
			m.logger.Error("failed to clean up migra", log.Error(stopErr))
		}
		return &domain.StartupFailure{Environment: m.env.Name(), Image: m.env.Image(), Err: err}
	}
	return nil
}

func (m *Migra) Stop(ctx context.Context) error {
	return m.env.Stop(ctx)
}

// DiffFull compares the whole reference database with the target.
func (m *Migra) DiffFull(ctx context.Context) (string, error) {
	return m.diff(ctx, m.command(""))
}

// DiffSchema compares a single schema.
func (m *Migra) DiffSchema(ctx context.Context, schema string) (string, error) {
	return m.diff(ctx, m.command(schema))
}

func (m *Migra) command(schema string) []string {
	cmd := []string{"migra", "--with-privileges", "--unsafe"}
	if schema != "" {
		cmd = append(cmd, "--schema", schema)
	}
	return append(cmd, m.targetURL, m.sourceURL)
}

func (m *Migra) diff(ctx context.Context, cmd []string) (string, error) {
	result, err := m.env.Exec(ctx, cmd, container.AllowExitCodes(migraExitCodes...))
	if err != nil {
		return "", err
	}
	return NormalizeSQL(result.OutText()), nil
}

// NormalizeSQL strips surrounding whitespace and terminates sql with exactly
// one newline.
func NormalizeSQL(sql string) string {
	return strings.TrimSpace(sql) + "\n"
}

// IsBlank reports whether sql contains no statements.
func IsBlank(sql string) bool {
	return strings.TrimSpace(sql) == ""
}
