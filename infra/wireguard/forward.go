package wireguard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/tun/netstack"

	"wgserv"
)

// tunnelNet is the part of the tunnel's network stack the forwards use.
type tunnelNet interface {
	DialTCP(ctx context.Context, dst netip.AddrPort) (net.Conn, error)
	DialUDP(src, dst netip.AddrPort) (net.Conn, error)
	ListenUDP(addr netip.AddrPort) (net.PacketConn, error)
}

type netstackNet struct {
	tnet *netstack.Net
}

func (n netstackNet) DialTCP(ctx context.Context, dst netip.AddrPort) (net.Conn, error) {
	c, err := n.tnet.DialContextTCPAddrPort(ctx, dst)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (n netstackNet) DialUDP(src, dst netip.AddrPort) (net.Conn, error) {
	c, err := n.tnet.DialUDPAddrPort(src, dst)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (n netstackNet) ListenUDP(addr netip.AddrPort) (net.PacketConn, error) {
	c, err := n.tnet.ListenUDPAddrPort(addr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// forwardTCP accepts host connections on fwd.Host and connects each one to
// fwd.Dst inside the tunnel. The tunnel side source address is chosen by
// the stack.
func forwardTCP(ctx context.Context, tn tunnelNet, fwd wgserv.PortForward, bufSize int, log *slog.Logger) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fwd.Host.String())
	if err != nil {
		return fmt.Errorf("listen tcp forward %s: %w", fwd.Host, err)
	}
	return serveTCPForward(ctx, ln, tn, fwd.Dst, bufSize, log.With("forward", "tcp", "host", fwd.Host, "dst", fwd.Dst))
}

func serveTCPForward(ctx context.Context, ln net.Listener, tn tunnelNet, dst netip.AddrPort, bufSize int, log *slog.Logger) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var conns sync.WaitGroup
	defer conns.Wait()

	log.Debug("tcp forward listening", "addr", ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept tcp forward on %s: %w", ln.Addr(), err)
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			proxyTCP(ctx, tn, c, dst, bufSize, log.With("client", c.RemoteAddr()))
		}()
	}
}

func proxyTCP(ctx context.Context, tn tunnelNet, host net.Conn, dst netip.AddrPort, bufSize int, log *slog.Logger) {
	defer host.Close()

	inner, err := tn.DialTCP(ctx, dst)
	if err != nil {
		log.Debug("dial through tunnel failed", "err", err)
		return
	}
	defer inner.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = host.Close()
		_ = inner.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pipe(inner, host, bufSize)
	}()
	go func() {
		defer wg.Done()
		pipe(host, inner, bufSize)
	}()
	wg.Wait()
	log.Debug("tcp forward closed")
}

// pipe copies src to dst and then half-closes dst so the far side sees EOF
// while the other direction keeps flowing.
func pipe(dst, src net.Conn, bufSize int) {
	_, _ = io.CopyBuffer(dst, src, make([]byte, bufSize))
	if cw, ok := dst.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = dst.Close()
}

// forwardUDP relays datagrams arriving on fwd.Host into the tunnel. Every
// client address gets its own tunnel socket so replies find their way back.
func forwardUDP(ctx context.Context, tn tunnelNet, fwd wgserv.PortForward, queueCap int, log *slog.Logger) error {
	pc, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(fwd.Host))
	if err != nil {
		return fmt.Errorf("listen udp forward %s: %w", fwd.Host, err)
	}
	f := &udpForward{
		host:     pc,
		tn:       tn,
		src:      fwd.Src,
		dst:      fwd.Dst,
		queueCap: queueCap,
		idle:     udpSessionIdle,
		log:      log.With("forward", "udp", "host", fwd.Host, "dst", fwd.Dst),
		sessions: make(map[netip.AddrPort]*udpSession),
	}
	return f.serve(ctx)
}

type udpForward struct {
	host     *net.UDPConn
	tn       tunnelNet
	src      netip.AddrPort
	dst      netip.AddrPort
	queueCap int
	idle     time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[netip.AddrPort]*udpSession
	wg       sync.WaitGroup
}

type udpSession struct {
	client netip.AddrPort
	inner  net.Conn
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
	timer  *time.Timer
}

func (f *udpForward) serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = f.host.Close() })
	defer stop()
	defer f.closeAll()

	buf := make([]byte, maxDatagram)
	for {
		n, client, err := f.host.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read udp forward on %s: %w", f.host.LocalAddr(), err)
		}
		s, err := f.session(client)
		if err != nil {
			f.log.Debug("open tunnel socket failed", "client", client, "err", err)
			continue
		}
		select {
		case s.queue <- append([]byte(nil), buf[:n]...):
			s.timer.Reset(f.idle)
		default:
			f.log.Debug("transmit queue full, dropping datagram", "client", client)
		}
	}
}

// session returns the live session for client, opening one if needed.
func (f *udpForward) session(client netip.AddrPort) (*udpSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[client]; ok {
		return s, nil
	}

	inner, err := f.tn.DialUDP(f.src, f.dst)
	if err != nil && f.src.Port() != 0 {
		// The configured source port is held by another client's session.
		inner, err = f.tn.DialUDP(netip.AddrPortFrom(f.src.Addr(), 0), f.dst)
	}
	if err != nil {
		return nil, err
	}

	s := &udpSession{
		client: client,
		inner:  inner,
		queue:  make(chan []byte, f.queueCap),
		done:   make(chan struct{}),
	}
	s.timer = time.AfterFunc(f.idle, func() { f.close(s) })
	f.sessions[client] = s

	f.wg.Add(2)
	go f.transmit(s)
	go f.receive(s)
	f.log.Debug("udp session opened", "client", client, "local", inner.LocalAddr())
	return s, nil
}

func (f *udpForward) transmit(s *udpSession) {
	defer f.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case pkt := <-s.queue:
			if _, err := s.inner.Write(pkt); err != nil {
				f.log.Debug("udp session write failed", "client", s.client, "err", err)
				f.close(s)
				return
			}
		}
	}
}

func (f *udpForward) receive(s *udpSession) {
	defer f.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, err := s.inner.Read(buf)
		if err != nil {
			f.close(s)
			return
		}
		s.timer.Reset(f.idle)
		if _, err := f.host.WriteToUDPAddrPort(buf[:n], s.client); err != nil {
			f.log.Debug("udp reply failed", "client", s.client, "err", err)
		}
	}
}

func (f *udpForward) close(s *udpSession) {
	s.once.Do(func() {
		f.mu.Lock()
		if f.sessions[s.client] == s {
			delete(f.sessions, s.client)
		}
		f.mu.Unlock()

		s.timer.Stop()
		close(s.done)
		_ = s.inner.Close()
		f.log.Debug("udp session closed", "client", s.client)
	})
}

func (f *udpForward) closeAll() {
	f.mu.Lock()
	sessions := make([]*udpSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		sessions = append(sessions, s)
	}
	f.mu.Unlock()

	for _, s := range sessions {
		f.close(s)
	}
	f.wg.Wait()
}
