package audio

import "strings"

const WAVHeaderSize = 44

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether input goes over a
// headset profile with degraded sample rate.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
	// Ended is closed when the device stops delivering audio without Stop
	// having been called (unplugged, server gone, source exhausted).
	Ended() <-chan struct{}
}
