package stop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

func TestNotifierWaitersBeforeAndAfter(t *testing.T) {
	t.Parallel()

	n := New()
	if n.Notified() {
		t.Fatal("new notifier should not be notified")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
			defer cancel()
			errs <- n.Wait(ctx)
		}()
	}

	n.Notify()
	n.Notify()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	// Late and repeated waits return immediately.
	for range 3 {
		if err := n.Wait(context.Background()); err != nil {
			t.Fatalf("late Wait() error = %v", err)
		}
	}
	if !n.Notified() {
		t.Fatal("notifier should report notified")
	}
}

func TestNotifierWaitHonoursContext(t *testing.T) {
	t.Parallel()

	n := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := n.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestNotifierContext(t *testing.T) {
	t.Parallel()

	n := New()
	ctx, cancel := n.Context(context.Background())
	defer cancel()

	n.Notify()
	select {
	case <-ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatal("derived context not cancelled after Notify")
	}
}

func TestOneshot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fire func(*Sender)
	}{
		{"send", (*Sender).Send},
		{"drop", (*Sender).Drop},
		{"send then drop", func(s *Sender) { s.Send(); s.Drop() }},
		{"drop then send", func(s *Sender) { s.Drop(); s.Send() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, n := Oneshot(context.Background())
			tt.fire(s)

			select {
			case <-n.Done():
			case <-time.After(waitTimeout):
				t.Fatal("notifier not fired")
			}
		})
	}
}

func TestOneshotBridgeExitsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s, n := Oneshot(ctx)
	cancel()

	// Give the bridge a moment to observe ctx; the send must not block and
	// must not fire the notifier afterwards.
	time.Sleep(20 * time.Millisecond)
	s.Send()
	time.Sleep(20 * time.Millisecond)
	if n.Notified() {
		t.Fatal("notifier fired after bridge context ended")
	}
}
