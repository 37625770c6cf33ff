package wireguard

import (
	"fmt"
	"strings"
)

// buildIPC renders the UAPI configuration of the device: our key and port,
// and the single peer that may route anything through the tunnel.
func buildIPC(cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "private_key=%x\n", cfg.PrivateKey[:])
	fmt.Fprintf(&b, "listen_port=%d\n", cfg.Bind.Port())
	fmt.Fprintf(&b, "replace_peers=true\n")
	fmt.Fprintf(&b, "public_key=%x\n", cfg.PeerKey[:])
	if cfg.PeerEndpoint.IsValid() {
		fmt.Fprintf(&b, "endpoint=%s\n", cfg.PeerEndpoint)
	}
	fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", cfg.KeepaliveInterval)
	fmt.Fprintf(&b, "replace_allowed_ips=true\n")
	fmt.Fprintf(&b, "allowed_ip=0.0.0.0/0\n")
	fmt.Fprintf(&b, "allowed_ip=::/0\n")
	return b.String()
}
