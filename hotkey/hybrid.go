package hotkey

import (
	"sync/atomic"
	"time"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// Hybrid turns one key combination into both hold-to-talk and
// tap-to-toggle. A press always starts a recording. Releasing after
// longPress stops it; releasing earlier leaves it running until the next
// press is released.
type Hybrid struct {
	startCh chan struct{}
	stopCh  chan struct{}
	toggle  atomic.Bool
	quit    chan struct{}
}

func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		startCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	go h.run(hk, longPress)
	return h
}

func (h *Hybrid) Start() <-chan struct{} { return h.startCh }

func (h *Hybrid) StopChan() <-chan struct{} { return h.stopCh }

// IsToggle reports whether the current recording was started with a tap.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

func (h *Hybrid) Mode() Mode {
	if h.IsToggle() {
		return ModeToggle
	}
	return ModePTT
}

// Close stops the state machine. It does not unregister the hotkey.
func (h *Hybrid) Close() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
}

func (h *Hybrid) wait(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hybrid) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	for {
		if !h.wait(hk.Keydown()) {
			return
		}
		h.toggle.Store(false)
		h.signal(h.startCh)

		timer := time.NewTimer(longPress)
		select {
		case <-timer.C:
			if !h.wait(hk.Keyup()) {
				return
			}
			h.signal(h.stopCh)
			continue
		case <-hk.Keyup():
			timer.Stop()
			h.toggle.Store(true)
		case <-h.quit:
			timer.Stop()
			return
		}

		if !h.wait(hk.Keydown()) || !h.wait(hk.Keyup()) {
			return
		}
		h.signal(h.stopCh)
	}
}
