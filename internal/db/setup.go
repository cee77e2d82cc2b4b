package db

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/technopolitica/pgdiff/internal/container"
	"github.com/technopolitica/pgdiff/internal/domain"
)

// SetupCommand is the entrypoint every setup image has to provide.
const SetupCommand = "setup_db"

type SetupOptions struct {
	Image   string
	Timeout time.Duration
	Labels  map[string]string
	Logger  container.Logger
}

// SetupRunner runs one setup image against the reference database. It is
// consumed by Run.
type SetupRunner struct {
	env    *container.Environment
	logger container.Logger
}

func NewSetupRunner(db *ReferenceDB, opts SetupOptions) *SetupRunner {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	env := container.New(container.Spec{
		Name:      "setup " + opts.Image,
		Image:     opts.Image,
		Cmd:       []string{SetupCommand},
		Env:       db.ConnectionEnv(),
		Labels:    opts.Labels,
		Network:   container.JoinNetworkOf(db.Environment()),
		Readiness: container.Completion(opts.Timeout),
		Logger:    opts.Logger,
	})
	return &SetupRunner{env: env, logger: opts.Logger}
}

func (s *SetupRunner) Image() string {
	return s.env.Image()
}

// Run starts the setup container, waits for it to exit and removes it. The
// captured output is returned in every case; a failed run is reported as a
// *domain.SetupFailure carrying that output.
func (s *SetupRunner) Run(ctx context.Context) (logs string, err error) {
	if s.env.State() != container.StateCreated {
		return "", fmt.Errorf("setup %s has already run", s.Image())
	}
	s.logger.Info("starting db setup", log.String("image", s.Image()))
	startErr := s.env.Start(ctx)
	logs, logsErr := s.env.Logs(ctx)
	stopErr := s.env.Stop(ctx)

	if startErr != nil {
		return logs, &domain.SetupFailure{Image: s.Image(), Logs: logs, Err: startErr}
	}
	if logsErr != nil {
		return logs, logsErr
	}
	if stopErr != nil {
		return logs, fmt.Errorf("failed to remove setup %s: %w", s.Image(), stopErr)
	}
	s.logger.Info("finished db setup", log.String("image", s.Image()))
	return logs, nil
}
