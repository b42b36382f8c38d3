package hotkey

import (
	"context"
	"sync/atomic"
	"time"
)

type Mode string

const (
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

// Hybrid gives one key combination both tap-to-toggle and hold-to-talk
// behavior. Every press that finds it idle starts a recording at once; how
// long the keys stay down decides how the recording ends. Held past the
// long-press threshold, the release stops it. Released sooner, the next
// full press stops it.
type Hybrid struct {
	startCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	toggle  atomic.Bool
}

// NewHybrid runs the hybrid state machine on hk until ctx is done.
func NewHybrid(ctx context.Context, hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		startCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go h.run(ctx, hk, longPress)
	return h
}

func (h *Hybrid) Start() <-chan struct{} { return h.startCh }
func (h *Hybrid) Stop() <-chan struct{}  { return h.stopCh }

// Done is closed once the state machine has exited.
func (h *Hybrid) Done() <-chan struct{} { return h.done }

// Mode reports how the current or last recording ends.
func (h *Hybrid) Mode() Mode {
	if h.toggle.Load() {
		return ModeToggle
	}
	return ModeHold
}

func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

func (h *Hybrid) run(ctx context.Context, hk Hotkey, longPress time.Duration) {
	defer close(h.done)

	for {
		if !recv(ctx, hk.Keydown()) {
			return
		}
		h.toggle.Store(false)
		if !send(ctx, h.startCh) {
			return
		}

		timer := time.NewTimer(longPress)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !recv(ctx, hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			h.toggle.Store(true)
			if !recv(ctx, hk.Keydown()) || !recv(ctx, hk.Keyup()) {
				return
			}
		}

		if !send(ctx, h.stopCh) {
			return
		}
	}
}

func recv(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func send(ctx context.Context, ch chan<- struct{}) bool {
	select {
	case ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}
