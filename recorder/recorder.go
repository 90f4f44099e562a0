// Package recorder buffers microphone samples between Start and Stop and
// turns the buffer into an audio file on demand.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"voxdoc/audio"
	"voxdoc/encoder"
)

// ErrCaptureUnavailable is returned when the input stream cannot be engaged:
// permission denied, no device, or a backend failure.
var ErrCaptureUnavailable = errors.New("capture unavailable")

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Source is the live input a Recorder pulls blocks from.
// audio.CaptureDevice satisfies it.
type Source interface {
	Start() error
	Stop()
	SetCallback(cb audio.SampleCallback)
	ClearCallback()
}

type Recorder struct {
	src        Source
	sampleRate int

	// ops serializes Start/Stop/Reset/Close. mu guards the buffer and is the
	// only lock taken on the delivery path.
	ops      sync.Mutex
	mu       sync.Mutex
	state    State
	samples  []float32
	onBlock  audio.SampleCallback
	engaged  bool
	torndown bool
}

// New attaches a recorder to src. The recorder installs its own callback on
// src and owns it until Close.
func New(src Source, sampleRate int) *Recorder {
	if sampleRate <= 0 {
		panic(fmt.Sprintf("recorder: invalid sample rate %d", sampleRate))
	}
	r := &Recorder{src: src, sampleRate: sampleRate}
	src.SetCallback(r.ingest)
	return r
}

// OnBlock registers fn to observe every block that is appended to the buffer.
// fn runs on the delivery goroutine after the buffer lock is released.
func (r *Recorder) OnBlock(fn audio.SampleCallback) {
	r.lockAlive()
	defer r.mu.Unlock()
	r.onBlock = fn
}

func (r *Recorder) ingest(block []float32) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return
	}
	r.samples = append(r.samples, block...)
	fn := r.onBlock
	r.mu.Unlock()

	if fn != nil {
		fn(block)
	}
}

// Start begins a new capture with an empty buffer.
//
// Calling Start while already recording keeps recording and deliberately
// discards what was buffered so far. Callers that want the old samples must
// Stop and export first.
func (r *Recorder) Start() error {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.lockAlive()
	r.state = Recording
	r.samples = nil
	engaged := r.engaged
	r.mu.Unlock()

	if engaged {
		return nil
	}

	// Backends may deliver synchronously from Start, so no lock is held here.
	if err := r.src.Start(); err != nil {
		r.mu.Lock()
		r.state = Idle
		r.samples = nil
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	r.mu.Lock()
	r.engaged = true
	r.mu.Unlock()
	return nil
}

// Stop ends the capture. Buffered samples stay available; blocks the platform
// delivers after Stop are dropped.
func (r *Recorder) Stop() {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.lockAlive()
	wasEngaged := r.engaged
	r.state = Idle
	r.engaged = false
	r.mu.Unlock()

	if wasEngaged {
		r.src.Stop()
	}
}

// Reset clears the buffer without changing the recording state.
func (r *Recorder) Reset() {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.lockAlive()
	defer r.mu.Unlock()
	r.samples = nil
}

// Samples returns a copy of the buffered samples. While recording the buffer
// keeps growing after the copy is taken.
func (r *Recorder) Samples() []float32 {
	r.lockAlive()
	defer r.mu.Unlock()
	out := make([]float32, len(r.samples))
	copy(out, r.samples)
	return out
}

func (r *Recorder) State() State {
	r.lockAlive()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Recording() bool {
	return r.State() == Recording
}

func (r *Recorder) SampleRate() int {
	return r.sampleRate
}

// Duration is the length of the buffered audio.
func (r *Recorder) Duration() time.Duration {
	r.lockAlive()
	n := len(r.samples)
	r.mu.Unlock()
	return time.Duration(float64(n) / float64(r.sampleRate) * float64(time.Second))
}

// Export encodes a snapshot of the buffer as WAV and passes it to done. An
// empty buffer produces a header-only file.
func (r *Recorder) Export(done func(encoder.Container)) {
	c, err := r.ExportAs(encoder.FormatWAV)
	if err != nil {
		// the wav encoder has no failure path
		panic(err)
	}
	done(c)
}

// ExportAs encodes a snapshot of the buffer in the given format.
func (r *Recorder) ExportAs(format string) (encoder.Container, error) {
	return encoder.Export(format, r.Samples(), r.sampleRate)
}

// Close stops capture and detaches from the source. Any later call on the
// recorder panics.
func (r *Recorder) Close() {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	if r.torndown {
		r.mu.Unlock()
		return
	}
	wasEngaged := r.engaged
	r.state = Idle
	r.engaged = false
	r.samples = nil
	r.onBlock = nil
	r.torndown = true
	r.mu.Unlock()

	if wasEngaged {
		r.src.Stop()
	}
	r.src.ClearCallback()
}

// lockAlive takes mu and panics if the recorder was closed. Closed recorders
// indicate a lifecycle bug in the caller.
func (r *Recorder) lockAlive() {
	r.mu.Lock()
	if r.torndown {
		r.mu.Unlock()
		panic("recorder: use after Close")
	}
}
