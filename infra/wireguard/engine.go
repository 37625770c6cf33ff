package wireguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun/netstack"
)

// ErrDeviceClosed is returned by Run when the WireGuard device shuts down
// on its own.
var ErrDeviceClosed = errors.New("wireguard device closed")

// Engine is a userspace WireGuard server for a single peer.
type Engine struct {
	cfg      Config
	resolver Resolver
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the resolver used to answer DNS queries from the tunnel.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		resolver: net.DefaultResolver,
		log:      slog.With("component", "wireguard", "bind", cfg.Bind),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run brings the tunnel up and serves it until ctx ends or a component
// fails. On cancellation it returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	if err := e.cfg.validate(); err != nil {
		return fmt.Errorf("wireguard config: %w", err)
	}

	addrs := e.cfg.localAddrs()
	tunDev, tnet, err := netstack.CreateNetTUN(addrs, nil, e.cfg.MTU)
	if err != nil {
		return fmt.Errorf("create netstack tun: %w", err)
	}

	dev := device.NewDevice(tunDev, newAddrBind(e.cfg.Bind.Addr()), newDeviceLogger(e.log))
	defer dev.Close()

	if err := dev.IpcSet(buildIPC(e.cfg)); err != nil {
		return fmt.Errorf("configure wireguard device: %w", err)
	}
	if err := dev.Up(); err != nil {
		return fmt.Errorf("bring up wireguard device: %w", err)
	}
	e.log.Info("Tunnel up.", "peer", e.cfg.PeerKey, "addrs", addrs)

	tn := netstackNet{tnet: tnet}
	var dnsConn net.PacketConn
	if e.cfg.DNSAddr.IsValid() {
		if dnsConn, err = tn.ListenUDP(e.cfg.DNSAddr); err != nil {
			return fmt.Errorf("listen dns %s: %w", e.cfg.DNSAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-dev.Wait():
			return ErrDeviceClosed
		}
	})
	if dnsConn != nil {
		g.Go(func() error {
			return serveDNS(gctx, dnsConn, e.resolver, e.log.With("dns", e.cfg.DNSAddr))
		})
	}
	for _, fwd := range e.cfg.IncomingTCP {
		g.Go(func() error { return forwardTCP(gctx, tn, fwd, e.cfg.TCPBufferSize, e.log) })
	}
	for _, fwd := range e.cfg.IncomingUDP {
		g.Go(func() error { return forwardUDP(gctx, tn, fwd, e.cfg.TransmitQueueCapacity, e.log) })
	}

	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
