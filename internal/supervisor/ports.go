package supervisor

import (
	"context"

	"wgserv/infra/relay"
	"wgserv/infra/wireguard"
)

// Service is a long-running network service. Run blocks until ctx ends or
// the service fails. A service that returns nil while its context is still
// live has exited abnormally.
// Production: *wireguard.Engine, *relay.Relay
// Testing: scripted fakes
type Service interface {
	Run(ctx context.Context) error
}

// Factory builds the two supervised services from their derived configs.
type Factory interface {
	Tunnel(cfg wireguard.Config) Service
	Relay(cfg relay.Config) Service
}
