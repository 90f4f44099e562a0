package recorder

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"voxdoc/audio"
	"voxdoc/encoder"
)

func newFake(t *testing.T) (*Recorder, *audio.FakeCapture) {
	t.Helper()
	ctx := audio.NewFakeContextFromSamples(nil, 8000, false)
	dev, err := ctx.NewCapture(nil, audio.CaptureConfig{SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	fc := dev.(*audio.FakeCapture)
	return New(fc, 8000), fc
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartStopSamples(t *testing.T) {
	r, fc := newFake(t)

	fc.Deliver([]float32{0.9}) // idle: dropped
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.State() != Recording || !fc.Running() {
		t.Fatalf("state = %v running = %v", r.State(), fc.Running())
	}
	fc.Deliver([]float32{0.1, 0.2})
	fc.Deliver([]float32{0.3})
	r.Stop()

	if r.State() != Idle {
		t.Errorf("state after Stop = %v", r.State())
	}
	if fc.Running() {
		t.Error("source still running after Stop")
	}
	if got, want := r.Samples(), []float32{0.1, 0.2, 0.3}; !equal(got, want) {
		t.Errorf("Samples = %v, want %v", got, want)
	}
}

func TestLateBlocksDropped(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Deliver([]float32{0.5})
	r.Stop()
	fc.Deliver([]float32{0.7, 0.7})

	if got := r.Samples(); !equal(got, []float32{0.5}) {
		t.Errorf("Samples = %v, want [0.5]", got)
	}

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if got := r.Samples(); len(got) != 0 {
		t.Errorf("Samples after restart = %v, want empty", got)
	}
}

func TestStartTwiceClearsBuffer(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Deliver([]float32{0.1, 0.1})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if r.State() != Recording {
		t.Fatalf("state = %v, want recording", r.State())
	}
	if fc.Starts() != 1 {
		t.Errorf("source started %d times, want 1", fc.Starts())
	}
	fc.Deliver([]float32{0.2})
	r.Stop()
	if got := r.Samples(); !equal(got, []float32{0.2}) {
		t.Errorf("Samples = %v, want [0.2]", got)
	}
}

func TestStopWhileIdle(t *testing.T) {
	r, fc := newFake(t)
	r.Stop()
	if r.State() != Idle || fc.Running() {
		t.Error("Stop while idle changed state")
	}
}

func TestReset(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Deliver([]float32{0.1})
	r.Reset()
	if r.State() != Recording {
		t.Error("Reset changed state")
	}
	fc.Deliver([]float32{0.4})
	r.Stop()
	r.Reset()
	if got := r.Samples(); len(got) != 0 {
		t.Errorf("Samples after Reset = %v", got)
	}
}

func TestStartUnavailable(t *testing.T) {
	ctx := audio.NewFakeContextFromSamples(nil, 16000, false)
	ctx.StartErr = errors.New("permission denied")
	dev, _ := ctx.NewCapture(nil, audio.CaptureConfig{})
	r := New(dev, 16000)

	err := r.Start()
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("err = %v, want ErrCaptureUnavailable", err)
	}
	if r.State() != Idle {
		t.Errorf("state = %v, want idle", r.State())
	}
}

func TestSamplesIsCopy(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Deliver([]float32{0.25})
	got := r.Samples()
	got[0] = 1
	if r.Samples()[0] != 0.25 {
		t.Error("Samples exposed the internal buffer")
	}
}

func TestScenarioExport(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Deliver([]float32{0.5, 0.5})
	fc.Deliver([]float32{-1.0, -1.0})
	fc.Deliver([]float32{0.0})
	r.Stop()

	var got encoder.Container
	r.Export(func(c encoder.Container) { got = c })

	if len(got.Data) != 54 {
		t.Fatalf("len = %d, want 54", len(got.Data))
	}
	if got.MediaType != "audio/wav" {
		t.Errorf("MediaType = %q", got.MediaType)
	}
	if rate := binary.LittleEndian.Uint32(got.Data[24:]); rate != 8000 {
		t.Errorf("rate = %d", rate)
	}
	want := []int16{16383, 16383, -32768, -32768, 0}
	for i, w := range want {
		if s := int16(binary.LittleEndian.Uint16(got.Data[44+i*2:])); s != w {
			t.Errorf("sample %d = %d, want %d", i, s, w)
		}
	}
}

func TestExportEmpty(t *testing.T) {
	r, _ := newFake(t)
	called := false
	r.Export(func(c encoder.Container) {
		called = true
		if len(c.Data) != 44 {
			t.Errorf("len = %d, want 44", len(c.Data))
		}
	})
	if !called {
		t.Error("completion callback not called")
	}
}

func TestOnBlock(t *testing.T) {
	r, fc := newFake(t)
	var seen int
	r.OnBlock(func(b []float32) { seen += len(b) })
	fc.Deliver([]float32{1, 2})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Deliver([]float32{0.1, 0.2, 0.3})
	r.Stop()
	if seen != 3 {
		t.Errorf("observed %d samples, want 3", seen)
	}
}

func TestConcurrentDelivery(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				fc.Deliver([]float32{0.1, 0.1, 0.1, 0.1})
			}
		}()
	}
	wg.Wait()
	r.Stop()
	if n := len(r.Samples()); n != 8*100*4 {
		t.Errorf("got %d samples, want %d", n, 8*100*4)
	}
}

func TestUseAfterClosePanics(t *testing.T) {
	r, fc := newFake(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.Close()
	r.Close()
	if fc.Running() {
		t.Error("source running after Close")
	}

	for name, op := range map[string]func(){
		"Start":   func() { _ = r.Start() },
		"Stop":    r.Stop,
		"Reset":   r.Reset,
		"Samples": func() { r.Samples() },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s after Close did not panic", name)
				}
			}()
			op()
		})
	}
}
