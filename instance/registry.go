package instance

import (
	"context"
	"log/slog"
	"sync"

	"wgserv"
	"wgserv/internal/logging"
	"wgserv/internal/signal/stop"
	"wgserv/internal/supervisor"
	"wgserv/platform"
)

// Handle identifies an instance. Handles are never reused.
type Handle uint64

// Runner supervises one run of a configured instance until stopped fires.
// Production: *supervisor.Supervisor
// Testing: scripted fakes
type Runner interface {
	Run(ctx context.Context, cfg wgserv.Config, stopped *stop.Notifier) error
}

type instance struct {
	config *wgserv.Config
	stop   *stop.Sender
	phase  Phase
}

// Registry maps handles to instances.
type Registry struct {
	runner  Runner
	logInit func(debug bool)

	mu    sync.Mutex
	next  Handle
	slots map[Handle]chan *instance
}

// Option configures a Registry. Use these to inject test dependencies.
type Option func(*Registry)

// WithServices runs instances with the default supervisor over the given
// service factory.
func WithServices(f supervisor.Factory) Option {
	return func(r *Registry) {
		r.runner = &supervisor.Supervisor{Factory: f}
	}
}

// WithSupervisor replaces the runner entirely.
func WithSupervisor(run Runner) Option {
	return func(r *Registry) {
		r.runner = run
	}
}

// WithLogInit replaces the process logging setup done on the first run.
func WithLogInit(fn func(debug bool)) Option {
	return func(r *Registry) {
		r.logInit = fn
	}
}

// NewProduction creates a registry running the real tunnel engine and
// relay. Use NewRegistry with explicit options for tests.
func NewProduction() *Registry {
	return NewRegistry(WithServices(platform.Services{}))
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logInit: logging.Init,
		slots:   make(map[Handle]chan *instance),
	}
	for _, o := range opts {
		o(r)
	}
	if r.runner == nil {
		r.runner = &supervisor.Supervisor{Factory: platform.Services{}}
	}
	return r
}

// Create allocates a new instance with no configuration.
func (r *Registry) Create() Handle {
	slot := make(chan *instance, 1)
	slot <- &instance{phase: PhaseCreated}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.slots[r.next] = slot
	return r.next
}

// acquire takes exclusive ownership of the instance behind h. The caller
// must hand it back with release unless it destroys the instance.
func (r *Registry) acquire(h Handle) (*instance, chan *instance, error) {
	r.mu.Lock()
	slot, ok := r.slots[h]
	r.mu.Unlock()
	if !ok {
		return nil, nil, ErrUnknownHandle
	}
	inst, ok := <-slot
	if !ok {
		return nil, nil, ErrUnknownHandle
	}
	return inst, slot, nil
}

func release(slot chan *instance, inst *instance) {
	slot <- inst
}

// SetConfig parses text and stores the result. A failed parse leaves the
// previous configuration in place.
func (r *Registry) SetConfig(h Handle, text string) error {
	inst, slot, err := r.acquire(h)
	if err != nil {
		return err
	}
	defer release(slot, inst)

	if inst.phase == PhaseRunning {
		return ErrAlreadyRunning
	}
	cfg, err := wgserv.Parse(text)
	if err != nil {
		return err
	}
	inst.config = &cfg
	inst.phase = inst.phase.Transition(PhaseConfigured)
	return nil
}

// Run consumes the instance's configuration and runs its services until
// the instance is destroyed or a service fails. A clean stop returns nil.
// Afterwards a surviving instance is back in PhaseCreated and needs a new
// configuration before it can run again.
func (r *Registry) Run(ctx context.Context, h Handle) error {
	inst, slot, err := r.acquire(h)
	if err != nil {
		return err
	}
	switch inst.phase {
	case PhaseRunning:
		release(slot, inst)
		return ErrAlreadyRunning
	case PhaseCreated:
		release(slot, inst)
		return ErrConfigRequired
	}

	cfg := *inst.config
	inst.config = nil
	sender, stopped := stop.Oneshot(ctx)
	inst.stop = sender
	inst.phase = inst.phase.Transition(PhaseRunning)
	release(slot, inst)

	r.logInit(cfg.Debug)
	log := slog.With("component", "instance", "handle", uint64(h))
	log.Info("Instance running.", "public_key", cfg.PublicKey(), "bind", cfg.BindIPPort)

	runErr := r.runner.Run(ctx, cfg, stopped)

	if inst, slot, err := r.acquire(h); err == nil {
		inst.stop = nil
		inst.phase = inst.phase.Transition(PhaseCreated)
		release(slot, inst)
	}
	sender.Drop()

	if runErr != nil {
		log.Warn("Instance stopped with error.", "err", runErr)
	} else {
		log.Info("Instance stopped.")
	}
	return runErr
}

// Destroy stops the instance if it is running and removes it. Any later
// call with h, including one already waiting for the instance, fails with
// ErrUnknownHandle.
func (r *Registry) Destroy(h Handle) error {
	inst, slot, err := r.acquire(h)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.slots, h)
	r.mu.Unlock()
	close(slot)

	if inst.stop != nil {
		inst.stop.Send()
		inst.stop = nil
	}
	inst.config = nil
	inst.phase = inst.phase.Transition(PhaseDestroyed)
	return nil
}

func (r *Registry) Phase(h Handle) (Phase, error) {
	inst, slot, err := r.acquire(h)
	if err != nil {
		return 0, err
	}
	defer release(slot, inst)
	return inst.phase, nil
}

// Config returns a copy of the stored configuration. The bool is false when
// none is set, including while the instance is running.
func (r *Registry) Config(h Handle) (wgserv.Config, bool, error) {
	inst, slot, err := r.acquire(h)
	if err != nil {
		return wgserv.Config{}, false, err
	}
	defer release(slot, inst)
	if inst.config == nil {
		return wgserv.Config{}, false, nil
	}
	return *inst.config, true, nil
}
