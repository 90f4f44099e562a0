// Package beep plays short tones that mark recording start, stop and
// failure.
package beep

import (
	"math"
	"sync/atomic"
)

type Sound int

const (
	Start Sound = iota
	Stop
	Error
)

func (s Sound) String() string {
	switch s {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Error:
		return "error"
	}
	return "unknown"
}

const sampleRate = 44100

type tone struct {
	freq    float64
	seconds float64
	volume  float64
	decay   float64
	// repeat plays the tone twice with a gap in between
	repeat bool
	gap    float64
}

var tones = map[Sound]tone{
	Start: {freq: 1200, seconds: 0.2, volume: 0.5, decay: 60},
	Stop:  {freq: 900, seconds: 0.2, volume: 0.5, decay: 40},
	Error: {freq: 350, seconds: 0.08, volume: 0.6, decay: 30, repeat: true, gap: 0.05},
}

var disabled atomic.Bool

func Disable() { disabled.Store(true) }
func Enable()  { disabled.Store(false) }

// Play starts s in the background. Playback failures are ignored.
func Play(s Sound) {
	if disabled.Load() {
		return
	}
	samples := Samples(s, channels)
	if len(samples) == 0 {
		return
	}
	go play(samples)
}

// Samples renders s as interleaved 16-bit PCM at 44.1 kHz.
func Samples(s Sound, ch int) []int16 {
	t, ok := tones[s]
	if !ok || ch <= 0 {
		return nil
	}
	out := render(t, ch)
	if t.repeat {
		gap := make([]int16, int(sampleRate*t.gap)*ch)
		out = append(append(out, gap...), render(t, ch)...)
	}
	return out
}

func render(t tone, ch int) []int16 {
	n := int(sampleRate * t.seconds)
	out := make([]int16, n*ch)
	for i := range n {
		sec := float64(i) / sampleRate
		v := int16(math.Sin(2*math.Pi*t.freq*sec) * 32767 * t.volume * math.Exp(-sec*t.decay))
		for c := range ch {
			out[i*ch+c] = v
		}
	}
	return out
}
