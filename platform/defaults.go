package platform

import "time"

const (
	// RelayRecvTimeout closes relay connections whose client went silent.
	// WireGuard keepalives arrive far more often than this when enabled.
	RelayRecvTimeout = 10 * time.Minute

	// DefaultConfigPath is where the CLI looks for configuration text when
	// no --config flag is given.
	DefaultConfigPath = "wgserv.yaml"
)
