package audio

import (
	"math"
	"strings"
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SampleCallback receives one block of mono samples in [-1, 1]. The slice is
// owned by the callee; backends allocate a fresh one per block.
type SampleCallback func(samples []float32)

// CaptureConfig asks for a capture format. Channels other than 1 are
// ignored; every backend delivers mono.
type CaptureConfig struct {
	SampleRate int
	Channels   int
}

type DeviceInfo struct {
	ID        string // opaque platform-specific identifier
	Name      string
	IsDefault bool
}

type Context interface {
	Backend() string
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb SampleCallback)
	ClearCallback()
	DeviceName() string
}

// RMS returns the root mean square level of a block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
