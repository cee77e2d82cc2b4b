// Package container runs short-lived docker environments on behalf of a
// single diff run. An Environment is one container described by a Spec: the
// network it joins, how readiness is detected and the fixed command and
// environment variables it is started with.
package container

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/acronis/go-appkit/log"
	"github.com/hashicorp/go-multierror"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
)

// Logger is the subset of log.FieldLogger environments write to.
type Logger interface {
	Debug(text string, fs ...log.Field)
	Info(text string, fs ...log.Field)
	Error(text string, fs ...log.Field)
}

// State is the lifecycle position of an Environment.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateReady
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Spec describes an Environment before it is started.
type Spec struct {
	// Name identifies the environment in logs and errors.
	Name    string
	Image   string
	Cmd     []string
	Env     map[string]string
	Labels  map[string]string
	Network NetworkMode
	// ExtraNetworks are existing networks joined in addition to Network.
	ExtraNetworks []string
	Readiness     Readiness
	Logger        Logger
}

// Environment is a single container started from a Spec. It is not safe for
// concurrent use.
type Environment struct {
	spec        Spec
	state       State
	container   testcontainers.Container
	network     *Network
	ownsNetwork bool
}

// New returns an Environment in StateCreated. Nothing is created in docker
// until Start.
func New(spec Spec) *Environment {
	if spec.Logger == nil {
		spec.Logger = log.NewDisabledLogger()
	}
	if spec.Readiness == nil {
		spec.Readiness = Running()
	}
	return &Environment{spec: spec}
}

func (e *Environment) Name() string {
	return e.spec.Name
}

func (e *Environment) Image() string {
	return e.spec.Image
}

func (e *Environment) State() State {
	return e.state
}

// Network returns the network the environment is attached to, nil before
// Start resolved it.
func (e *Environment) Network() *Network {
	return e.network
}

// Start launches the container and blocks until the readiness strategy is
// satisfied. A failed Start leaves partially created resources in place so
// that logs can still be collected; Stop releases them.
func (e *Environment) Start(ctx context.Context) (err error) {
	if e.state != StateCreated {
		return fmt.Errorf("cannot start %s in state %s", e.spec.Name, e.state)
	}
	e.state = StateStarting
	defer func() {
		if err != nil {
			e.state = StateFailed
		}
	}()

	nw, owned, err := e.spec.Network.resolve(ctx, e.spec.Labels)
	if err != nil {
		return fmt.Errorf("failed to set up network: %w", err)
	}
	e.network = nw
	e.ownsNetwork = owned

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      e.spec.Image,
			Cmd:        e.spec.Cmd,
			Env:        e.spec.Env,
			Labels:     e.spec.Labels,
			WaitingFor: e.spec.Readiness.waitStrategy(),
		},
		Started: true,
		Logger:  providerLogger{e.spec.Logger},
	}
	if nw != nil {
		if err = network.WithNetwork(e.spec.Network.aliases, nw.docker)(&req); err != nil {
			return fmt.Errorf("failed to attach network: %w", err)
		}
	}
	for _, name := range e.spec.ExtraNetworks {
		if err = network.WithNetworkName(nil, name)(&req); err != nil {
			return fmt.Errorf("failed to attach network %s: %w", name, err)
		}
	}

	e.spec.Logger.Debug("starting container", log.String("environment", e.spec.Name), log.String("image", e.spec.Image))
	ctr, err := testcontainers.GenericContainer(ctx, req)
	// the container is returned even on failure and must be terminated by Stop
	e.container = ctr
	if err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	if err = e.spec.Readiness.verify(ctx, ctr); err != nil {
		return err
	}
	e.state = StateReady
	return nil
}

// Stop terminates the container and removes the network if the environment
// created it. Calling Stop more than once or after a failed Start is safe.
func (e *Environment) Stop(ctx context.Context) error {
	if e.state == StateStopped {
		return nil
	}
	var result *multierror.Error
	if e.container != nil {
		if err := e.container.Terminate(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to terminate %s: %w", e.spec.Name, err))
		}
		e.container = nil
	}
	if e.ownsNetwork && e.network != nil {
		if err := e.network.remove(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to remove network of %s: %w", e.spec.Name, err))
		}
	}
	e.network = nil
	e.ownsNetwork = false
	e.state = StateStopped
	e.spec.Logger.Debug("stopped container", log.String("environment", e.spec.Name))
	return result.ErrorOrNil()
}

// Exec runs cmd inside the ready environment, see Exec.
func (e *Environment) Exec(ctx context.Context, cmd []string, opts ...ExecOption) (ExecResult, error) {
	if e.state != StateReady {
		return ExecResult{}, fmt.Errorf("cannot exec in %s in state %s", e.spec.Name, e.state)
	}
	return Exec(ctx, e.container, cmd, opts...)
}

// Logs returns everything the container wrote to stdout and stderr so far.
func (e *Environment) Logs(ctx context.Context) (string, error) {
	if e.container == nil {
		return "", nil
	}
	logs, err := e.container.Logs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs of %s: %w", e.spec.Name, err)
	}
	defer logs.Close()
	output, err := io.ReadAll(logs)
	if err != nil {
		return "", fmt.Errorf("failed to read logs of %s: %w", e.spec.Name, err)
	}
	return string(output), nil
}

// providerLogger forwards testcontainers' own output to the run logger.
type providerLogger struct {
	logger Logger
}

func (l providerLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
