package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FlacEncoder writes each block as one mono FLAC frame. The stream header is
// written up front with an unknown sample count.
type FlacEncoder struct {
	tally
	rate uint32

	mu  sync.Mutex
	buf bytes.Buffer
	enc *flac.Encoder
}

func NewFlac(sampleRate int) (*FlacEncoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid flac sample rate %d", sampleRate)
	}
	e := &FlacEncoder{rate: uint32(sampleRate)}
	enc, err := flac.NewEncoder(&e.buf, &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    e.rate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *FlacEncoder) frameFor(block []int16) *frame.Frame {
	pcm := make([]int32, len(block))
	for i, s := range block {
		pcm[i] = int32(s)
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    e.rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   pcm,
			NSamples:  len(pcm),
		}},
	}
}

func (e *FlacEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	f := e.frameFor(block)

	e.mu.Lock()
	err := e.enc.WriteFrame(f)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.count(len(block))
	return nil
}

func (e *FlacEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Close()
}

// Bytes returns the encoded stream. It is complete only after Close.
func (e *FlacEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Bytes()
}
