package supervisor

import (
	"net/netip"

	"wgserv"
	"wgserv/infra/relay"
	"wgserv/infra/wireguard"
)

// DeriveTunnel returns the tunnel engine's config. The engine keeps the
// configured port but listens on loopback, leaving the public address to
// the relay.
func DeriveTunnel(cfg wgserv.Config) wireguard.Config {
	return wireguard.Config{
		PrivateKey:            cfg.PrivateKey,
		PeerKey:               cfg.PeerKey,
		PeerEndpoint:          cfg.PeerEndpoint,
		KeepaliveInterval:     cfg.KeepaliveInterval,
		Bind:                  netip.AddrPortFrom(loopback(cfg.BindIPPort.Addr()), cfg.BindIPPort.Port()),
		DNSAddr:               cfg.DNSAddr,
		Pingable:              cfg.Pingable,
		MTU:                   cfg.MTU,
		TCPBufferSize:         cfg.TCPBufferSize,
		IncomingUDP:           cfg.IncomingUDP,
		IncomingTCP:           cfg.IncomingTCP,
		TransmitQueueCapacity: cfg.TransmitQueueCapacity,
	}
}

// DeriveRelay returns the relay's config: it fronts the configured bind
// address and forwards to the tunnel's loopback socket. Its UDP side is
// bound to the peer endpoint when one is set.
func DeriveRelay(cfg wgserv.Config) relay.Config {
	return relay.Config{
		Listen:  []netip.AddrPort{cfg.BindIPPort},
		Forward: DeriveTunnel(cfg).Bind,
		UDPBind: cfg.PeerEndpoint,
		NoDelay: true,
	}
}

// loopback returns the loopback address of addr's family.
func loopback(addr netip.Addr) netip.Addr {
	if addr.Unmap().Is4() {
		return netip.AddrFrom4([4]byte{127, 0, 0, 1})
	}
	return netip.IPv6Loopback()
}
