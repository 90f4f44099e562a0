//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// PulseAudio sinks are usually stereo.
const channels = 2

var (
	// cues play one at a time so a stop tone never overlaps the start tone.
	pulseMu sync.Mutex
	client  *pulse.Client
)

// pulseClient returns the shared client, dialing on first use.
func pulseClient() (*pulse.Client, error) {
	if client != nil {
		return client, nil
	}
	c, err := pulse.NewClient(pulse.ClientApplicationName("voxdoc"))
	if err != nil {
		return nil, err
	}
	client = c
	return c, nil
}

func pcmReader(samples []int16) pulse.Reader {
	return pulse.Int16Reader(func(buf []int16) (int, error) {
		if len(samples) == 0 {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples)
		samples = samples[n:]
		return n, nil
	})
}

func play(samples []int16) {
	pulseMu.Lock()
	defer pulseMu.Unlock()

	c, err := pulseClient()
	if err != nil {
		return
	}
	full := uint32(proto.VolumeNorm)
	stream, err := c.NewPlayback(pcmReader(samples),
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{full, full}
		}),
	)
	if err != nil {
		// The server may have restarted; dial again next time.
		client.Close()
		client = nil
		return
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
}
