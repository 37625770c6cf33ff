package supervisor

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"wgserv"
	"wgserv/infra/relay"
	"wgserv/infra/wireguard"
	"wgserv/internal/signal/stop"
)

const runTimeout = 5 * time.Second

// fakeService runs fn, or blocks until its context ends when fn is nil.
type fakeService struct {
	fn       func(ctx context.Context) error
	started  chan struct{}
	aborted  atomic.Bool
	returned atomic.Bool
}

func newFake(fn func(ctx context.Context) error) *fakeService {
	return &fakeService{fn: fn, started: make(chan struct{})}
}

func (f *fakeService) Run(ctx context.Context) error {
	close(f.started)
	defer f.returned.Store(true)
	if f.fn != nil {
		return f.fn(ctx)
	}
	<-ctx.Done()
	f.aborted.Store(true)
	return ctx.Err()
}

type fakeFactory struct {
	tunnel    *fakeService
	relay     *fakeService
	tunnelCfg wireguard.Config
	relayCfg  relay.Config
}

func (f *fakeFactory) Tunnel(cfg wireguard.Config) Service {
	f.tunnelCfg = cfg
	return f.tunnel
}

func (f *fakeFactory) Relay(cfg relay.Config) Service {
	f.relayCfg = cfg
	return f.relay
}

func testConfig() wgserv.Config {
	cfg := wgserv.Sample()
	cfg.BindIPPort = netip.MustParseAddrPort("0.0.0.0:9798")
	return cfg
}

func runAsync(s *Supervisor, n *stop.Notifier) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), testConfig(), n) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(runTimeout):
		t.Fatal("Run did not return in time")
		return nil
	}
}

func TestRunStopsCleanlyOnNotify(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{tunnel: newFake(nil), relay: newFake(nil)}
	n := stop.New()
	done := runAsync(&Supervisor{Factory: f}, n)

	<-f.tunnel.started
	<-f.relay.started
	n.Notify()

	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if !f.tunnel.aborted.Load() || !f.relay.aborted.Load() {
		t.Fatal("both services should observe the abort")
	}
	if !f.tunnel.returned.Load() || !f.relay.returned.Load() {
		t.Fatal("a service is still running after Run returned")
	}
}

func TestRunAlreadyNotified(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{tunnel: newFake(nil), relay: newFake(nil)}
	n := stop.New()
	n.Notify()

	if err := waitResult(t, runAsync(&Supervisor{Factory: f}, n)); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}

func TestTunnelFailureAbortsRelay(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{
		tunnel: newFake(func(context.Context) error { return errors.New("boom") }),
		relay:  newFake(nil),
	}
	err := waitResult(t, runAsync(&Supervisor{Factory: f}, stop.New()))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if got := err.Error(); got != "tunnel: boom" {
		t.Fatalf("Run() error = %q, want %q", got, "tunnel: boom")
	}
	if !f.relay.aborted.Load() || !f.relay.returned.Load() {
		t.Fatal("relay was left running after the tunnel failed")
	}
}

func TestRelayFailureIsReported(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{
		tunnel: newFake(nil),
		relay:  newFake(func(context.Context) error { return errors.New("address in use") }),
	}
	err := waitResult(t, runAsync(&Supervisor{Factory: f}, stop.New()))
	if err == nil || err.Error() != "relay: address in use" {
		t.Fatalf("Run() error = %v, want relay failure", err)
	}
	if !f.tunnel.aborted.Load() {
		t.Fatal("tunnel was not aborted after the relay failed")
	}
}

func TestServiceReturningNilIsAbnormal(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{
		tunnel: newFake(func(context.Context) error { return nil }),
		relay:  newFake(nil),
	}
	err := waitResult(t, runAsync(&Supervisor{Factory: f}, stop.New()))
	if !errors.Is(err, ErrAbnormalExit) {
		t.Fatalf("Run() error = %v, want ErrAbnormalExit", err)
	}
	if !strings.HasPrefix(err.Error(), "tunnel:") {
		t.Fatalf("Run() error = %q, want it to name the tunnel", err)
	}
}

func TestErrorAfterStopIsCancellation(t *testing.T) {
	t.Parallel()

	n := stop.New()
	f := &fakeFactory{
		tunnel: newFake(func(ctx context.Context) error {
			<-ctx.Done()
			return errors.New("socket closed")
		}),
		relay: newFake(nil),
	}
	done := runAsync(&Supervisor{Factory: f}, n)
	<-f.tunnel.started
	n.Notify()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}

func TestDrainTimeoutDoesNotBlock(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := &fakeFactory{
		tunnel: newFake(func(context.Context) error {
			<-release
			return nil
		}),
		relay: newFake(nil),
	}
	n := stop.New()
	done := runAsync(&Supervisor{Factory: f, DrainTimeout: 50 * time.Millisecond}, n)
	<-f.tunnel.started
	n.Notify()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}

func TestRunRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	f := &fakeFactory{
		tunnel: newFake(func(context.Context) error { return errors.New("boom") }),
		relay:  newFake(nil),
	}
	_ = waitResult(t, runAsync(&Supervisor{Factory: f, Tracer: tracer}, stop.New()))

	outcomes := map[string]string{}
	for _, span := range recorder.Ended() {
		for _, kv := range span.Attributes() {
			if string(kv.Key) == OutcomeKey {
				outcomes[span.Name()] = kv.Value.AsString()
			}
		}
	}
	want := map[string]string{OperationName: "failed", StepTunnel: "failed", StepRelay: "cancelled"}
	for name, kind := range want {
		if outcomes[name] != kind {
			t.Fatalf("span outcomes = %v, want %v", outcomes, want)
		}
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tunnelErr := errors.New("tunnel: x")
	relayErr := errors.New("relay: y")
	cancelled := func(name string) Outcome { return Outcome{Kind: OutcomeCancelled, Service: name} }

	tests := []struct {
		name   string
		tunnel Outcome
		relay  Outcome
		want   error
	}{
		{"both cancelled", cancelled("tunnel"), cancelled("relay"), nil},
		{"tunnel failed", Outcome{Kind: OutcomeFailed, Err: tunnelErr}, cancelled("relay"), tunnelErr},
		{"relay failed", cancelled("tunnel"), Outcome{Kind: OutcomeFailed, Err: relayErr}, relayErr},
		{"both failed", Outcome{Kind: OutcomeFailed, Err: tunnelErr}, Outcome{Kind: OutcomeFailed, Err: relayErr}, tunnelErr},
	}
	for _, tt := range tests {
		if got := decide(tt.tunnel, tt.relay).Err; got != tt.want {
			t.Errorf("%s: decide() error = %v, want %v", tt.name, got, tt.want)
		}
	}
}
