//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	c := &malgoCapture{device: device, ended: make(chan struct{})}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			if cb := c.callback.Load(); cb != nil {
				(*cb)(data, frameCount)
			}
		},
		Stop: func() {
			if !c.stopping.Load() {
				c.endedOnce.Do(func() { close(c.ended) })
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	c.dev = dev
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	dev      *malgo.Device
	device   *DeviceInfo
	callback atomic.Pointer[DataCallback]
	stopping atomic.Bool

	closeOnce sync.Once
	endedOnce sync.Once
	ended     chan struct{}
}

func (c *malgoCapture) Start() error {
	c.stopping.Store(false)
	return c.dev.Start()
}

func (c *malgoCapture) Stop() {
	c.stopping.Store(true)
	c.dev.Stop()
}

func (c *malgoCapture) Close() {
	c.closeOnce.Do(func() {
		c.stopping.Store(true)
		c.dev.Uninit()
	})
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) Ended() <-chan struct{} { return c.ended }

func (c *malgoCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}
