package platform

import (
	"wgserv/infra/relay"
	"wgserv/infra/wireguard"
	"wgserv/internal/supervisor"
)

// Services builds the production tunnel engine and relay.
type Services struct{}

var _ supervisor.Factory = Services{}

func (Services) Tunnel(cfg wireguard.Config) supervisor.Service {
	return wireguard.New(cfg)
}

func (Services) Relay(cfg relay.Config) supervisor.Service {
	cfg.RecvTimeout = RelayRecvTimeout
	return relay.New(cfg)
}
