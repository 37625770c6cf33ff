// Package relay terminates TCP connections and forwards their payload as UDP
// datagrams, and the replies back. Each datagram travels over TCP prefixed
// with its length as a big-endian uint16 (the udp-over-tcp framing), which
// lets clients reach a UDP service from networks that only pass TCP.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Config describes one relay.
type Config struct {
	// Listen are the TCP addresses clients connect to.
	Listen []netip.AddrPort
	// Forward is the UDP target every connection's datagrams are sent to.
	Forward netip.AddrPort
	// UDPBind is the local address of the per-connection UDP socket. The zero
	// value binds an ephemeral port.
	UDPBind netip.AddrPort
	// NoDelay disables Nagle's algorithm on accepted connections.
	NoDelay bool
	// RecvTimeout closes a connection that sends nothing for this long. Zero
	// disables the timeout.
	RecvTimeout time.Duration
}

// Relay runs a TCP-to-UDP bridge until its context ends.
type Relay struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Relay {
	return &Relay{
		cfg: cfg,
		log: slog.With("component", "relay", "forward", cfg.Forward),
	}
}

func (r *Relay) Config() Config { return r.cfg }

// Run listens on every configured address and serves until ctx ends or a
// listener fails. It never returns nil.
func (r *Relay) Run(ctx context.Context) error {
	if len(r.cfg.Listen) == 0 {
		return errors.New("relay: no listen address")
	}
	if !r.cfg.Forward.IsValid() {
		return errors.New("relay: forward address is required")
	}

	var lc net.ListenConfig
	listeners := make([]net.Listener, 0, len(r.cfg.Listen))
	for _, addr := range r.cfg.Listen {
		ln, err := lc.Listen(ctx, "tcp", addr.String())
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("listen tcp %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
	}
	return r.Serve(ctx, listeners)
}

// Serve accepts connections on the given listeners and takes ownership of
// them. It returns once every connection handler has finished.
func (r *Relay) Serve(ctx context.Context, listeners []net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	closeListeners := context.AfterFunc(gctx, func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	})
	defer closeListeners()

	var conns sync.WaitGroup
	for _, ln := range listeners {
		r.log.Info("Relay listening.", "addr", ln.Addr())
		g.Go(func() error { return r.acceptLoop(gctx, ln, &conns) })
	}

	err := g.Wait()
	conns.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (r *Relay) acceptLoop(ctx context.Context, ln net.Listener, conns *sync.WaitGroup) error {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(5*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(0),
	)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isTemporaryAccept(err) {
				return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
			}
			wait := bo.NextBackOff()
			r.log.Warn("Accept failed, retrying.", "err", err, "in", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		conns.Add(1)
		go func() {
			defer conns.Done()
			r.handle(ctx, conn)
		}()
	}
}

func (r *Relay) handle(ctx context.Context, tcp net.Conn) {
	log := r.log.With("client", tcp.RemoteAddr())
	defer tcp.Close()

	if tc, ok := tcp.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(r.cfg.NoDelay); err != nil {
			log.Debug("set TCP_NODELAY failed", "err", err)
		}
	}

	udp, err := r.dialUDP(ctx)
	if err != nil {
		log.Warn("Open UDP socket failed.", "err", err)
		return
	}
	defer udp.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopIO := context.AfterFunc(ctx, func() {
		_ = tcp.Close()
		_ = udp.Close()
	})
	defer stopIO()

	log.Debug("connection accepted", "udp_local", udp.LocalAddr())

	errc := make(chan error, 2)
	go func() { errc <- r.tcpToUDP(tcp, udp) }()
	go func() { errc <- r.udpToTCP(udp, tcp) }()

	err = <-errc
	cancel()
	<-errc
	log.Debug("connection closed", "err", err)
}

func (r *Relay) dialUDP(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Control: reuseAddr}
	if r.cfg.UDPBind.IsValid() {
		d.LocalAddr = net.UDPAddrFromAddrPort(r.cfg.UDPBind)
	}
	conn, err := d.DialContext(ctx, "udp", r.cfg.Forward.String())
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", r.cfg.Forward, err)
	}
	return conn, nil
}

func (r *Relay) tcpToUDP(tcp net.Conn, udp net.Conn) error {
	fr := NewFrameReader(tcp)
	buf := make([]byte, MaxFrameSize)
	for {
		if r.cfg.RecvTimeout > 0 {
			if err := tcp.SetReadDeadline(time.Now().Add(r.cfg.RecvTimeout)); err != nil {
				return err
			}
		}
		n, err := fr.ReadFrame(buf)
		if err != nil {
			return err
		}
		if _, err := udp.Write(buf[:n]); err != nil && !isRefused(err) {
			return fmt.Errorf("write udp: %w", err)
		}
	}
}

func (r *Relay) udpToTCP(udp net.Conn, tcp net.Conn) error {
	fw := NewFrameWriter(tcp)
	buf := make([]byte, MaxFrameSize)
	for {
		n, err := udp.Read(buf)
		if err != nil {
			if isRefused(err) {
				continue
			}
			return fmt.Errorf("read udp: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := fw.WriteFrame(buf[:n]); err != nil {
			return err
		}
	}
}
