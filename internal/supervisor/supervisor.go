// Package supervisor runs the tunnel engine and the relay side by side for
// one server run. Both start together, both are aborted together when the
// stop notifier fires or either of them fails, and their outcomes are
// folded into a single result.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"wgserv"
	"wgserv/internal/check"
	"wgserv/internal/signal/stop"
	"wgserv/internal/telemetry"
)

const (
	// DefaultDrainTimeout bounds how long Run waits for aborted services to
	// return before giving up on them.
	DefaultDrainTimeout = 5 * time.Second

	OperationName = "wgserv.run"
	StepTunnel    = "tunnel"
	StepRelay     = "relay"
	OutcomeKey    = telemetry.OutcomeKey
)

type Supervisor struct {
	Factory Factory
	// Tracer defaults to telemetry.Tracer().
	Tracer       trace.Tracer
	DrainTimeout time.Duration
}

type unit struct {
	name    string
	svc     Service
	done    chan struct{}
	outcome Outcome
}

// Run supervises both services until stopped fires, ctx ends, or one of
// them stops on its own. It returns nil for a clean stop.
func (s *Supervisor) Run(ctx context.Context, cfg wgserv.Config, stopped *stop.Notifier) error {
	check.Assert(s.Factory != nil, "Supervisor.Run: Factory must not be nil")
	check.Assert(stopped != nil, "Supervisor.Run: stop notifier must not be nil")

	tracer := s.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	run, err := telemetry.Start(ctx, tracer, OperationName, []telemetry.Service{
		{ID: StepTunnel, Title: "Run WireGuard tunnel engine"},
		{ID: StepRelay, Title: "Run TCP relay"},
	})
	if err != nil {
		return err
	}

	tunnelCfg := DeriveTunnel(cfg)
	relayCfg := DeriveRelay(cfg)
	slog.Info("Starting services.", "bind", cfg.BindIPPort, "tunnel", tunnelCfg.Bind)

	units := []*unit{
		{name: StepTunnel, svc: s.Factory.Tunnel(tunnelCfg), done: make(chan struct{})},
		{name: StepRelay, svc: s.Factory.Relay(relayCfg), done: make(chan struct{})},
	}

	g, gctx := errgroup.WithContext(run.Context())
	for _, u := range units {
		g.Go(func() error {
			return run.Service(gctx, u.name, func(svcCtx context.Context) (string, error) {
				u.outcome = supervise(svcCtx, u, stopped)
				return u.outcome.Kind.String(), u.outcome.Err
			})
		})
	}
	_ = g.Wait()
	s.drain(units)

	for _, u := range units {
		slog.Info("Service stopped.", "service", u.name, "outcome", u.outcome.Kind, "err", u.outcome.Err)
	}
	result := decide(units[0].outcome, units[1].outcome)
	run.End(result.Kind.String(), result.Err)
	return result.Err
}

// supervise starts the unit's service and races it against cancellation.
// Cancellation wins ties, and aborting the service never blocks.
func supervise(ctx context.Context, u *unit, stopped *stop.Notifier) Outcome {
	uctx, abort := context.WithCancel(ctx)
	defer abort()

	result := make(chan error, 1)
	go func() {
		defer close(u.done)
		result <- u.svc.Run(uctx)
	}()

	select {
	case err := <-result:
		if stopped.Notified() || ctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled, Service: u.name}
		}
		if err == nil {
			return Outcome{Kind: OutcomeAbnormalExit, Service: u.name, Err: fmt.Errorf("%s: %w", u.name, ErrAbnormalExit)}
		}
		return Outcome{Kind: OutcomeFailed, Service: u.name, Err: fmt.Errorf("%s: %w", u.name, err)}
	case <-stopped.Done():
	case <-ctx.Done():
	}
	return Outcome{Kind: OutcomeCancelled, Service: u.name}
}

func (s *Supervisor) drain(units []*unit) {
	timeout := s.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, u := range units {
		select {
		case <-u.done:
			continue
		case <-timer.C:
		}
		for _, left := range units {
			select {
			case <-left.done:
			default:
				slog.Warn("Service did not stop in time.", "service", left.name, "timeout", timeout)
			}
		}
		return
	}
}
