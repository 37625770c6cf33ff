// Package wgserv holds the configuration model of a WireGuard server
// instance: the typed Config, the strict text parser that produces it, and
// the sample configuration used to bootstrap new installs.
//
// Configuration text is YAML. Unknown fields are rejected so that typos fail
// loudly instead of silently falling back to defaults.
package wgserv

import (
	"net/netip"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Config holds validated run parameters for one server instance.
// Optional addresses use the zero value (IsValid() == false) for "unset".
type Config struct {
	Debug bool

	PrivateKey wgtypes.Key
	PeerKey    wgtypes.Key
	// PeerEndpoint is where the single peer is expected to send from.
	PeerEndpoint netip.AddrPort
	// KeepaliveInterval in seconds; 0 disables persistent keepalive.
	KeepaliveInterval uint16
	// BindIPPort is the externally reachable address. The relay listens here
	// and the tunnel engine reuses its port on loopback.
	BindIPPort netip.AddrPort

	// DNSAddr, when set, receives DNS queries from inside the tunnel and
	// answers them with the host resolver.
	DNSAddr netip.AddrPort
	// Pingable, when set, answers ICMP echo from inside the tunnel.
	Pingable      netip.Addr
	MTU           int
	TCPBufferSize int
	IncomingUDP   []PortForward
	IncomingTCP   []PortForward

	TransmitQueueCapacity int
}

// PortForward exposes a host socket inside the tunnel. Connections or
// datagrams arriving at Host are forwarded to Dst through the tunnel,
// appearing to come from Src when it is set.
type PortForward struct {
	Host netip.AddrPort
	Src  netip.AddrPort
	Dst  netip.AddrPort
}

// PublicKey returns the server's public key, which the peer must be
// configured with.
func (c Config) PublicKey() wgtypes.Key {
	return c.PrivateKey.PublicKey()
}

// document is the on-disk shape of Config. Required fields are pointers so
// that absence can be told apart from a zero value.
type document struct {
	Debug                 bool              `yaml:"debug"`
	PrivateKey            *string           `yaml:"private_key"`
	PeerKey               *string           `yaml:"peer_key"`
	PeerEndpoint          *string           `yaml:"peer_endpoint,omitempty"`
	KeepaliveInterval     *uint16           `yaml:"keepalive_interval,omitempty"`
	BindIPPort            *string           `yaml:"bind_ip_port"`
	DNSAddr               *string           `yaml:"dns_addr,omitempty"`
	Pingable              *string           `yaml:"pingable,omitempty"`
	MTU                   *int              `yaml:"mtu"`
	TCPBufferSize         *int              `yaml:"tcp_buffer_size"`
	IncomingUDP           []forwardDocument `yaml:"incoming_udp"`
	IncomingTCP           []forwardDocument `yaml:"incoming_tcp"`
	TransmitQueueCapacity *int              `yaml:"transmit_queue_capacity"`
}

type forwardDocument struct {
	Host *string `yaml:"host"`
	Src  *string `yaml:"src,omitempty"`
	Dst  *string `yaml:"dst"`
}
