package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"voxdoc/encoder"
)

const (
	BackendFake   = "fake"
	fakeFrameSize = 1024
)

// FakeContext replays samples as if they came from a microphone.
type FakeContext struct {
	samples    []float32
	sampleRate int
	realtime   bool

	// StartErr, when set, is returned by every capture's Start.
	StartErr error
}

// NewFakeContext loads a WAV file to replay. In realtime mode blocks are
// paced at the file's sample rate; otherwise they are delivered at once.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, rate, err := encoder.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wavPath, err)
	}
	return &FakeContext{samples: samples, sampleRate: rate, realtime: realtime}, nil
}

func NewFakeContextFromSamples(samples []float32, sampleRate int, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, sampleRate: sampleRate, realtime: realtime}
}

func (f *FakeContext) Backend() string { return BackendFake }
func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake", IsDefault: true}}, nil
}
func (f *FakeContext) Close() {}

// SampleRate is the rate of the replayed audio.
func (f *FakeContext) SampleRate() int { return f.sampleRate }

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		samples:   f.samples,
		rate:      f.sampleRate,
		realtime:  f.realtime,
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	samples   []float32
	rate      int
	realtime  bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       SampleCallback
	running  bool
	starts   int
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once every replayed sample has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb SampleCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Running reports whether the capture is between Start and Stop.
func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Starts counts successful Start calls.
func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Deliver hands a block to the installed callback the way a platform audio
// thread would, whether or not the capture is running.
func (f *FakeCapture) Deliver(block []float32) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		b := make([]float32, len(block))
		copy(b, block)
		cb(b)
	}
}

func (f *FakeCapture) feed(pos int) int {
	end := min(pos+fakeFrameSize, len(f.samples))
	f.Deliver(f.samples[pos:end])
	return end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.starts++
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone, audioDone := f.stopCh, f.feedDone, f.audioDone
	f.mu.Unlock()

	if !f.realtime {
		for pos := 0; pos < len(f.samples); {
			pos = f.feed(pos)
		}
		close(audioDone)
		close(feedDone)
		return nil
	}

	rate := f.rate
	if rate <= 0 {
		rate = encoder.SampleRate
	}
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(rate)
	go func() {
		defer close(feedDone)
		for pos := 0; pos < len(f.samples); {
			pos = f.feed(pos)
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
		close(audioDone)
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	close(stopCh)
	<-feedDone

	f.mu.Lock()
	select {
	case <-f.audioDone:
		f.audioDone = make(chan struct{}) // reset for replay
	default:
	}
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }
