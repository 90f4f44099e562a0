//go:build !linux

package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

type xHotkey struct {
	binding Binding
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New returns a system-wide hotkey for b. Nothing is grabbed until Register.
func New(b Binding) (Hotkey, error) {
	key, mods, err := b.xKey()
	if err != nil {
		return nil, fmt.Errorf("hotkey %s: %w", b, err)
	}
	return &xHotkey{
		binding: b,
		hk:      hotkey.New(mods, key),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return fmt.Errorf("registering %s: %w", h.binding, err)
	}
	go forward(h.hk.Keydown(), h.keydown, h.done)
	go forward(h.hk.Keyup(), h.keyup, h.done)
	return nil
}

func forward(src <-chan hotkey.Event, dst chan<- struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case _, ok := <-src:
			if !ok {
				return
			}
			select {
			case dst <- struct{}{}:
			case <-done:
				return
			}
		}
	}
}

func (h *xHotkey) Unregister() {
	h.once.Do(func() {
		close(h.done)
		h.hk.Unregister()
	})
}

func (h *xHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *xHotkey) Keyup() <-chan struct{}   { return h.keyup }

// Diagnose checks that b can be grabbed right now by registering and
// releasing it.
func Diagnose(b Binding) (string, error) {
	hk, err := New(b)
	if err != nil {
		return "", err
	}
	if err := hk.Register(); err != nil {
		return "", err
	}
	hk.Unregister()
	return fmt.Sprintf("global hotkey %s available", b), nil
}
