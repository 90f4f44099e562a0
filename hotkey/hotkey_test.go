package hotkey

import (
	"testing"
	"time"
)

func waitStart(t *testing.T, hy *Hybrid) {
	t.Helper()
	select {
	case <-hy.Start():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start")
	}
}

func waitStop(t *testing.T, hy *Hybrid) {
	t.Helper()
	select {
	case <-hy.StopChan():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop")
	}
}

func TestHybridLongPress(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	fk.SimKeydown()
	waitStart(t, hy)

	time.Sleep(threshold + 20*time.Millisecond)
	if hy.Mode() != ModePTT {
		t.Error("expected push-to-talk after long press")
	}
	fk.SimKeyup()
	waitStop(t, hy)
}

func TestHybridShortTap(t *testing.T) {
	fk := NewFake()
	hy := NewHybrid(fk, 200*time.Millisecond)
	defer hy.Close()

	fk.SimKeydown()
	waitStart(t, hy)
	fk.SimKeyup()
	time.Sleep(10 * time.Millisecond)
	if !hy.IsToggle() {
		t.Error("expected toggle mode after short tap")
	}

	select {
	case <-hy.StopChan():
		t.Fatal("stopped after a short tap")
	case <-time.After(50 * time.Millisecond):
	}

	fk.Tap()
	waitStop(t, hy)
}

func TestHybridMultipleCycles(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	fk.SimKeydown()
	waitStart(t, hy)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitStop(t, hy)

	fk.SimKeydown()
	waitStart(t, hy)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)
	fk.Tap()
	waitStop(t, hy)

	fk.SimKeydown()
	waitStart(t, hy)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitStop(t, hy)
}

func TestHybridClose(t *testing.T) {
	fk := NewFake()
	hy := NewHybrid(fk, 50*time.Millisecond)
	hy.Close()
	hy.Close()
	time.Sleep(10 * time.Millisecond)

	fk.SimKeydown()
	select {
	case <-hy.Start():
		t.Error("closed hybrid still emits starts")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		in, want string
	}{
		{"ctrl+shift+space", "ctrl+shift+space"},
		{"Shift+Ctrl+Space", "ctrl+shift+space"},
		{"cmd+option+k", "alt+super+k"},
		{"control + enter", "ctrl+return"},
		{"alt+F9", "alt+f9"},
	} {
		t.Run(tt.in, func(t *testing.T) {
			b, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if b.String() != tt.want {
				t.Errorf("got %q, want %q", b.String(), tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "space", "ctrl+", "hyper+a", "ctrl+ctrl+a", "ctrl+pagedown"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded", in)
		}
	}
}

func TestDefaultParses(t *testing.T) {
	b, err := Parse(Default)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(b); err != nil {
		t.Errorf("default binding unusable: %v", err)
	}
}
