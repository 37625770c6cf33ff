package stop

import (
	"context"
	"sync"
)

// Sender is the single-use producing end of a stop request.
type Sender struct {
	once sync.Once
	ch   chan struct{}
}

// Send delivers the stop request. Only the first Send or Drop has an effect.
func (s *Sender) Send() {
	s.once.Do(func() {
		s.ch <- struct{}{}
		close(s.ch)
	})
}

// Drop releases the sender without an explicit request. The bridge treats
// this exactly like Send.
func (s *Sender) Drop() {
	s.once.Do(func() { close(s.ch) })
}

// Oneshot creates a Sender and the Notifier it feeds. A bridging goroutine
// owns the receiving end and fires the Notifier on Send or Drop. The bridge
// exits without firing if ctx ends first.
func Oneshot(ctx context.Context) (*Sender, *Notifier) {
	s := &Sender{ch: make(chan struct{}, 1)}
	n := New()
	go bridge(ctx, s.ch, n)
	return s, n
}

func bridge(ctx context.Context, rx <-chan struct{}, n *Notifier) {
	select {
	case <-rx:
		// A value and a closed channel mean the same thing here.
		n.Notify()
	case <-ctx.Done():
	}
}
