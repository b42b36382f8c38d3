package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voiceops/encoder"
)

// Stream is one acquisition of the microphone. Chunks delivers encoded audio
// in capture order and is closed once the stream is finished, either by Close
// or because the device went away.
type Stream interface {
	ContentType() string
	Chunks() <-chan []byte
	Close() error
	Stats() Stats
}

// Stats describes the audio a stream has encoded so far.
type Stats struct {
	Frames     uint64 // PCM frames, including padding of the last block
	EncodeTime time.Duration
}

type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// DeviceMicrophone opens capture streams on a Context device and encodes them
// on the fly.
type DeviceMicrophone struct {
	Context Context
	Device  *DeviceInfo
	Format  string
}

func NewMicrophone(ctx Context, device *DeviceInfo, format string) *DeviceMicrophone {
	return &DeviceMicrophone{Context: ctx, Device: device, Format: format}
}

func (m *DeviceMicrophone) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := encoder.New(m.Format)
	if err != nil {
		return nil, err
	}

	capture, err := m.Context.NewCapture(m.Device, CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("opening capture device: %w", err)
	}

	s := &captureStream{
		capture: capture,
		enc:     enc,
		chunks:  make(chan []byte, 256),
		stopped: make(chan struct{}),
	}
	s.emit(enc.Header())

	capture.SetCallback(func(data []byte, _ uint32) {
		if len(data) == 0 {
			return
		}
		out, err := enc.Write(data)
		if err != nil {
			s.setErr(err)
			return
		}
		s.emit(out)
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, fmt.Errorf("starting capture on %s: %w", capture.DeviceName(), err)
	}

	go s.watch()
	return s, nil
}

type captureStream struct {
	capture CaptureDevice
	enc     encoder.Stream
	chunks  chan []byte
	stopped chan struct{}

	mu       sync.Mutex
	closed   bool
	err      error
	stopOnce sync.Once
}

func (s *captureStream) ContentType() string { return s.enc.ContentType() }

func (s *captureStream) Chunks() <-chan []byte { return s.chunks }

func (s *captureStream) Stats() Stats {
	return Stats{Frames: s.enc.TotalFrames(), EncodeTime: s.enc.EncodeTime()}
}

func (s *captureStream) Close() error {
	s.finish()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *captureStream) watch() {
	select {
	case <-s.capture.Ended():
		s.finish()
	case <-s.stopped:
	}
}

func (s *captureStream) finish() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.capture.Stop()
		s.capture.ClearCallback()
		s.capture.Close()

		tail, err := s.enc.Close()
		if err != nil {
			s.setErr(err)
		}
		s.emit(tail)

		s.mu.Lock()
		s.closed = true
		close(s.chunks)
		s.mu.Unlock()
	})
}

// emit runs on the audio callback; the chunk channel is drained by the
// recording session for the whole lifetime of the stream.
func (s *captureStream) emit(b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.chunks <- b
}

func (s *captureStream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}
