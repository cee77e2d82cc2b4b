package container

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Readiness decides when Start returns.
type Readiness interface {
	waitStrategy() wait.Strategy
	verify(ctx context.Context, ctr testcontainers.Container) error
}

type logPattern struct {
	pattern     string
	occurrences int
	timeout     time.Duration
}

// LogPattern waits until the container logs match the regular expression
// pattern the given number of times.
func LogPattern(pattern string, occurrences int, timeout time.Duration) Readiness {
	if occurrences < 1 {
		occurrences = 1
	}
	return logPattern{pattern: pattern, occurrences: occurrences, timeout: timeout}
}

func (r logPattern) waitStrategy() wait.Strategy {
	return wait.ForLog(r.pattern).
		AsRegexp().
		WithOccurrence(r.occurrences).
		WithStartupTimeout(r.timeout)
}

func (r logPattern) verify(context.Context, testcontainers.Container) error {
	return nil
}

type completion struct {
	timeout time.Duration
}

// Completion treats starting as running the container's command to the end.
// Start fails when the command exits with a non-zero code.
func Completion(timeout time.Duration) Readiness {
	return completion{timeout: timeout}
}

func (r completion) waitStrategy() wait.Strategy {
	return wait.ForExit().WithExitTimeout(r.timeout)
}

func (r completion) verify(ctx context.Context, ctr testcontainers.Container) error {
	state, err := ctr.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect container state: %w", err)
	}
	if state.Running {
		return fmt.Errorf("container still running after %s", r.timeout)
	}
	if state.ExitCode != 0 {
		return fmt.Errorf("got non-zero exit code: %d", state.ExitCode)
	}
	return nil
}

type running struct{}

// Running returns as soon as the container process has been started.
func Running() Readiness {
	return running{}
}

func (running) waitStrategy() wait.Strategy {
	return nil
}

func (running) verify(context.Context, testcontainers.Container) error {
	return nil
}
