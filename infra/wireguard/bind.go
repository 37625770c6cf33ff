package wireguard

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
)

// addrBind is a conn.Bind listening on one address instead of every
// interface, so the tunnel socket can stay on loopback behind the relay.
type addrBind struct {
	addr netip.Addr

	mu sync.Mutex
	uc *net.UDPConn
}

var _ conn.Bind = (*addrBind)(nil)

func newAddrBind(addr netip.Addr) *addrBind {
	return &addrBind{addr: addr.Unmap()}
}

func (b *addrBind) Open(port uint16) ([]conn.ReceiveFunc, uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.uc != nil {
		return nil, 0, conn.ErrBindAlreadyOpen
	}
	network := "udp4"
	if b.addr.Is6() {
		network = "udp6"
	}
	uc, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(netip.AddrPortFrom(b.addr, port)))
	if err != nil {
		return nil, 0, fmt.Errorf("listen udp %s: %w", netip.AddrPortFrom(b.addr, port), err)
	}
	b.uc = uc
	actual := uc.LocalAddr().(*net.UDPAddr).AddrPort().Port()
	return []conn.ReceiveFunc{receiveFrom(uc)}, actual, nil
}

func receiveFrom(uc *net.UDPConn) conn.ReceiveFunc {
	return func(packets [][]byte, sizes []int, eps []conn.Endpoint) (int, error) {
		n, from, err := uc.ReadFromUDPAddrPort(packets[0])
		if err != nil {
			return 0, err
		}
		sizes[0] = n
		eps[0] = endpoint(netip.AddrPortFrom(from.Addr().Unmap(), from.Port()))
		return 1, nil
	}
}

func (b *addrBind) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.uc == nil {
		return nil
	}
	err := b.uc.Close()
	b.uc = nil
	return err
}

func (b *addrBind) SetMark(uint32) error { return nil }

func (b *addrBind) Send(bufs [][]byte, ep conn.Endpoint) error {
	b.mu.Lock()
	uc := b.uc
	b.mu.Unlock()
	if uc == nil {
		return net.ErrClosed
	}

	dst, ok := ep.(endpoint)
	if !ok {
		return fmt.Errorf("unsupported endpoint type %T", ep)
	}
	for _, buf := range bufs {
		if _, err := uc.WriteToUDPAddrPort(buf, netip.AddrPort(dst)); err != nil {
			return err
		}
	}
	return nil
}

func (b *addrBind) ParseEndpoint(s string) (conn.Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return nil, err
	}
	return endpoint(netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())), nil
}

func (b *addrBind) BatchSize() int { return 1 }

// endpoint is a peer address. Replies leave from the bound socket, so there
// is no sticky source to track.
type endpoint netip.AddrPort

func (e endpoint) ClearSrc() {}

func (e endpoint) SrcToString() string { return "" }

func (e endpoint) DstToString() string { return netip.AddrPort(e).String() }

func (e endpoint) DstToBytes() []byte {
	b, _ := netip.AddrPort(e).MarshalBinary()
	return b
}

func (e endpoint) DstIP() netip.Addr { return netip.AddrPort(e).Addr() }

func (e endpoint) SrcIP() netip.Addr { return netip.Addr{} }
