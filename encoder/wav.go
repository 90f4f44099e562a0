package encoder

import (
	"encoding/binary"
	"sync"
)

// Quantize converts a sample to 16-bit PCM. Out-of-range input is clamped
// to [-1, 1]; negative values scale by 32768, the rest by 32767, truncated
// toward zero.
func Quantize(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	} else if v != v {
		v = 0
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// EncodeWAV serializes mono float samples into a 16-bit PCM WAV file.
// The output depends only on its inputs.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	buf := make([]byte, WAVHeaderSize+len(samples)*2)
	putWAVHeader(buf, sampleRate, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[WAVHeaderSize+i*2:], uint16(Quantize(s)))
	}
	return buf
}

func putWAVHeader(buf []byte, sampleRate, payloadBytes int) {
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+payloadBytes))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(payloadBytes))
}

// WavEncoder accumulates PCM blocks; the header is written by Close once the
// payload length is known.
type WavEncoder struct {
	tally
	sampleRate int

	mu      sync.Mutex
	payload []byte
	out     []byte
}

func NewWav(sampleRate int) *WavEncoder {
	return &WavEncoder{sampleRate: sampleRate}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	for _, s := range block {
		e.payload = binary.LittleEndian.AppendUint16(e.payload, uint16(s))
	}
	e.mu.Unlock()
	e.count(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]byte, WAVHeaderSize+len(e.payload))
	putWAVHeader(out, e.sampleRate, len(e.payload))
	copy(out[WAVHeaderSize:], e.payload)
	e.out = out
	return nil
}

// Bytes returns the finished file. It is nil until Close.
func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}
