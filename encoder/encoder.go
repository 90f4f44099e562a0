package encoder

import (
	"fmt"
	"sync"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
	WAVHeaderSize = 44
)

const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// tally counts what an encoder has consumed. Encoders embed it.
type tally struct {
	lock    sync.Mutex
	frames  uint64
	elapsed time.Duration
}

func (t *tally) count(n int) {
	t.lock.Lock()
	t.frames += uint64(n)
	t.lock.Unlock()
}

func (t *tally) TotalFrames() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.frames
}

func (t *tally) AddEncodeTime(d time.Duration) {
	t.lock.Lock()
	t.elapsed += d
	t.lock.Unlock()
}

func (t *tally) EncodeTime() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.elapsed
}

// Container is a finished audio file. Data is never modified after the
// container is handed out.
type Container struct {
	Data        []byte
	MediaType   string
	Format      string
	SampleRate  int
	SampleCount int
	EncodeTime  time.Duration
}

// Ext returns the file extension for the container format, with the dot.
func (c Container) Ext() string {
	return "." + c.Format
}

// Duration returns the audio length.
func (c Container) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.SampleCount) / float64(c.SampleRate) * float64(time.Second))
}

func New(format string, sampleRate int) (Encoder, error) {
	switch format {
	case FormatWAV:
		return NewWav(sampleRate), nil
	case FormatFLAC:
		return NewFlac(sampleRate)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func MediaType(format string) string {
	switch format {
	case FormatFLAC:
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// Export quantizes samples and runs them through the encoder for format in
// BlockSize chunks.
func Export(format string, samples []float32, sampleRate int) (Container, error) {
	enc, err := New(format, sampleRate)
	if err != nil {
		return Container{}, err
	}

	block := make([]int16, 0, BlockSize)
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		block = block[:0]
		for _, s := range samples[i:end] {
			block = append(block, Quantize(s))
		}
		start := time.Now()
		if err := enc.EncodeBlock(block); err != nil {
			return Container{}, err
		}
		enc.AddEncodeTime(time.Since(start))
	}
	if err := enc.Close(); err != nil {
		return Container{}, fmt.Errorf("closing %s encoder: %w", format, err)
	}

	return Container{
		Data:        enc.Bytes(),
		MediaType:   MediaType(format),
		Format:      format,
		SampleRate:  sampleRate,
		SampleCount: len(samples),
		EncodeTime:  enc.EncodeTime(),
	}, nil
}
