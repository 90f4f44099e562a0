//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"

	"github.com/gen2brain/malgo"
)

const channels = 1

var (
	initOnce sync.Once
	mctx     *malgo.AllocatedContext

	// one tone at a time; a new tone cuts off the previous one
	playMu sync.Mutex
	device *malgo.Device
	buf    []byte
	pos    int
)

func initContext() {
	c, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	mctx = c
}

func fill(out, _ []byte, frames uint32) {
	playMu.Lock()
	defer playMu.Unlock()
	n := copy(out[:min(int(frames)*2*channels, len(out))], buf[pos:])
	pos += n
	clear(out[n:])
}

func play(samples []int16) {
	initOnce.Do(initContext)
	if mctx == nil {
		return
	}

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	playMu.Lock()
	if device != nil {
		d := device
		device = nil
		playMu.Unlock()
		d.Uninit()
		playMu.Lock()
	}
	buf, pos = data, 0
	playMu.Unlock()

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = channels
	config.SampleRate = sampleRate
	d, err := malgo.InitDevice(mctx.Context, config, malgo.DeviceCallbacks{Data: fill})
	if err != nil {
		return
	}
	if err := d.Start(); err != nil {
		d.Uninit()
		return
	}
	playMu.Lock()
	device = d
	playMu.Unlock()
}
