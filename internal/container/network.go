package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
)

// Network is an isolated docker network shared by the environments of a run.
type Network struct {
	docker *testcontainers.DockerNetwork
}

func (n *Network) Name() string {
	return n.docker.Name
}

func (n *Network) remove(ctx context.Context) error {
	return n.docker.Remove(ctx)
}

// NetworkMode decides which network an environment is attached to and under
// which aliases other environments can reach it.
type NetworkMode struct {
	create  bool
	owner   *Environment
	aliases []string
}

// NewNetwork creates a fresh network owned by the environment. It is removed
// when the environment stops.
func NewNetwork(aliases ...string) NetworkMode {
	return NetworkMode{create: true, aliases: aliases}
}

// JoinNetworkOf attaches the environment to the network of owner, which must
// have been started first.
func JoinNetworkOf(owner *Environment, aliases ...string) NetworkMode {
	return NetworkMode{owner: owner, aliases: aliases}
}

func (m NetworkMode) resolve(ctx context.Context, labels map[string]string) (nw *Network, owned bool, err error) {
	switch {
	case m.create:
		var docker *testcontainers.DockerNetwork
		docker, err = network.New(ctx, network.WithLabels(labels))
		if err != nil {
			err = fmt.Errorf("failed to create network: %w", err)
			return
		}
		return &Network{docker}, true, nil
	case m.owner != nil:
		if m.owner.Network() == nil {
			err = fmt.Errorf("network of %s is not available in state %s", m.owner.Name(), m.owner.State())
			return
		}
		return m.owner.Network(), false, nil
	default:
		if len(m.aliases) > 0 {
			err = errors.New("network aliases require a user defined network")
		}
		return
	}
}
