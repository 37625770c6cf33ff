package wireguard

import (
	"errors"
	"net/netip"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgserv"
)

// Addresses the netstack interface uses for families that have no
// configured address. Forwarded connections need a source address of the
// destination's family.
var (
	defaultAddr4 = netip.MustParseAddr("10.0.2.2")
	defaultAddr6 = netip.MustParseAddr("fd00::2")
)

const (
	// udpSessionIdle closes a UDP forward session after this long without
	// traffic in either direction.
	udpSessionIdle = 2 * time.Minute
	// maxDatagram is the largest UDP payload the forwards handle.
	maxDatagram = 65535
)

// Config holds the static configuration of one tunnel engine.
type Config struct {
	PrivateKey   wgtypes.Key
	PeerKey      wgtypes.Key
	PeerEndpoint netip.AddrPort
	// KeepaliveInterval in seconds; 0 disables persistent keepalive.
	KeepaliveInterval uint16
	// Bind is the UDP address the WireGuard socket listens on.
	Bind netip.AddrPort

	DNSAddr               netip.AddrPort
	Pingable              netip.Addr
	MTU                   int
	TCPBufferSize         int
	IncomingUDP           []wgserv.PortForward
	IncomingTCP           []wgserv.PortForward
	TransmitQueueCapacity int
}

func (c Config) validate() error {
	if !c.Bind.IsValid() {
		return errors.New("bind address is required")
	}
	if c.MTU <= 0 {
		return errors.New("mtu must be positive")
	}
	if c.TCPBufferSize <= 0 {
		return errors.New("tcp buffer size must be positive")
	}
	if c.TransmitQueueCapacity <= 0 {
		return errors.New("transmit queue capacity must be positive")
	}
	return nil
}

// localAddrs returns the addresses assigned to the netstack interface,
// without duplicates, in a stable order.
func (c Config) localAddrs() []netip.Addr {
	var addrs []netip.Addr
	add := func(a netip.Addr) {
		if !a.IsValid() || a.IsUnspecified() {
			return
		}
		a = a.Unmap()
		for _, have := range addrs {
			if have == a {
				return
			}
		}
		addrs = append(addrs, a)
	}

	add(c.Pingable)
	add(c.DNSAddr.Addr())
	for _, f := range c.IncomingUDP {
		add(f.Src.Addr())
	}
	for _, f := range c.IncomingTCP {
		add(f.Src.Addr())
	}

	var has4, has6 bool
	for _, a := range addrs {
		if a.Is4() {
			has4 = true
		} else {
			has6 = true
		}
	}
	if !has4 {
		addrs = append(addrs, defaultAddr4)
	}
	if !has6 {
		addrs = append(addrs, defaultAddr6)
	}
	return addrs
}
