package audio

import (
	"os"
	"sync"
	"time"

	"voiceops/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays PCM16 mono audio in place of a microphone. Once the
// audio is exhausted it keeps feeding silence, or ends the capture when
// EndOnEOF is set.
type FakeContext struct {
	pcm      []byte
	realtime bool
	EndOnEOF bool
	// FailOpen makes NewCapture fail, standing in for a denied microphone.
	FailOpen error
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.FailOpen != nil {
		return nil, f.FailOpen
	}
	return &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		endOnEOF:  f.EndOnEOF,
		audioDone: make(chan struct{}),
		ended:     make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	endOnEOF  bool
	audioDone chan struct{}
	ended     chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once every sample of the source has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) Ended() <-chan struct{} { return f.ended }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		if len(f.pcm) == 0 {
			close(f.audioDone)
			if f.endOnEOF {
				close(f.ended)
				return
			}
		}
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			if cb := f.callback(); cb != nil {
				switch {
				case pos < len(f.pcm):
					pos = f.feedChunk(cb, pos, chunkBytes)
					if pos == len(f.pcm) {
						close(f.audioDone)
						if f.endOnEOF {
							close(f.ended)
							return
						}
					}
				default:
					cb(silence, fakeFrameSize)
				}
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() { f.Stop() }
