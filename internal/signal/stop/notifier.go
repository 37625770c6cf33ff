// Package stop turns a single-use stop request into a broadcast that any
// number of goroutines can observe, any number of times.
//
// A Sender is handed to whoever may stop a run (typically Destroy). The
// matching Notifier is shared by everything that must react to the stop.
// Sending and dropping the Sender are equivalent: both fire the Notifier.
package stop

import (
	"context"
	"sync"
)

// Notifier is a broadcast-once signal. Once notified it stays notified.
// The zero value is not usable; create one with New.
type Notifier struct {
	once sync.Once
	done chan struct{}
}

// New returns an unfired Notifier.
func New() *Notifier {
	return &Notifier{done: make(chan struct{})}
}

// Notify fires the notifier. Calls after the first are no-ops.
func (n *Notifier) Notify() {
	n.once.Do(func() { close(n.done) })
}

// Done returns a channel that is closed once the notifier fires.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

// Notified reports whether the notifier has fired.
func (n *Notifier) Notified() bool {
	select {
	case <-n.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the notifier fires or ctx ends. After the notifier has
// fired every call returns nil immediately.
func (n *Notifier) Wait(ctx context.Context) error {
	select {
	case <-n.done:
		return nil
	default:
	}
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context returns a copy of parent that is cancelled when the notifier
// fires. Call cancel to release the watcher goroutine.
func (n *Notifier) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-n.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
