package recording

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceops/audio"
)

type fakeStream struct {
	chunks    chan []byte
	closeOnce sync.Once
	closes    atomic.Int32
	frames    atomic.Uint64
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan []byte, 16)}
}

func (f *fakeStream) ContentType() string   { return "audio/webm" }
func (f *fakeStream) Chunks() <-chan []byte { return f.chunks }
func (f *fakeStream) push(b []byte)         { f.frames.Add(uint64(len(b) / 2)); f.chunks <- b }
func (f *fakeStream) end()                  { f.closeOnce.Do(func() { close(f.chunks) }) }

func (f *fakeStream) Stats() audio.Stats {
	return audio.Stats{Frames: f.frames.Load(), EncodeTime: time.Millisecond}
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.end()
	return nil
}

type fakeMic struct {
	err     error
	opens   atomic.Int32
	streams chan *fakeStream
}

func newFakeMic() *fakeMic {
	return &fakeMic{streams: make(chan *fakeStream, 4)}
}

func (m *fakeMic) Open(context.Context) (audio.Stream, error) {
	m.opens.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	s := newFakeStream()
	m.streams <- s
	return s, nil
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	s := New(newFakeMic())

	_, ok := s.Stop()
	assert.False(t, ok)
	assert.IsType(t, Idle{}, s.State())
}

func TestStartStopConcatenatesChunks(t *testing.T) {
	mic := newFakeMic()
	s := New(mic)

	require.NoError(t, s.Start(context.Background()))
	require.IsType(t, Recording{}, s.State())

	stream := <-mic.streams
	stream.push([]byte("hello "))
	stream.push([]byte("world"))

	p, ok := s.Stop()
	require.True(t, ok)
	assert.Equal(t, "hello world", string(p.Data))
	assert.Equal(t, "audio/webm", p.ContentType)
	assert.EqualValues(t, 5, p.Frames)

	st, ok := s.State().(Stopped)
	require.True(t, ok, "state = %v", s.State())
	assert.Equal(t, p, st.Payload)
	assert.EqualValues(t, 1, stream.closes.Load())
}

func TestDoubleStopFinalizesOnce(t *testing.T) {
	mic := newFakeMic()
	s := New(mic)
	require.NoError(t, s.Start(context.Background()))
	stream := <-mic.streams
	stream.push([]byte{1, 2, 3})

	var wg sync.WaitGroup
	var finalized atomic.Int32
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Stop(); ok {
				finalized.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, finalized.Load())
	assert.EqualValues(t, 1, stream.closes.Load())
	_, ok := s.Stop()
	assert.False(t, ok)
}

func TestStartWhileRecordingIsRejected(t *testing.T) {
	mic := newFakeMic()
	s := New(mic)
	require.NoError(t, s.Start(context.Background()))
	before := s.State().(Recording)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.EqualValues(t, 1, mic.opens.Load())

	after, ok := s.State().(Recording)
	require.True(t, ok)
	assert.Equal(t, before.ID, after.ID)

	p, ok := s.Stop()
	require.True(t, ok)
	assert.Empty(t, p.Data)
}

func TestStartRejectedUntilFinished(t *testing.T) {
	mic := newFakeMic()
	s := New(mic)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	assert.ErrorIs(t, s.Start(context.Background()), ErrBusy)

	p, ok := s.BeginSubmit()
	require.True(t, ok)
	assert.NotNil(t, p.Data)
	assert.IsType(t, Submitting{}, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrBusy)

	_, ok = s.BeginSubmit()
	assert.False(t, ok)

	s.Finish()
	assert.IsType(t, Idle{}, s.State())
	assert.NoError(t, s.Start(context.Background()))
	s.Close()
	assert.IsType(t, Idle{}, s.State())
}

func TestPermissionError(t *testing.T) {
	denied := errors.New("NotAllowedError")
	mic := newFakeMic()
	mic.err = denied
	s := New(mic)

	err := s.Start(context.Background())
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, PermissionMessage, perr.UserMessage())
	assert.IsType(t, Idle{}, s.State())

	mic.err = nil
	assert.NoError(t, s.Start(context.Background()), "session must be reusable after a permission failure")
}

func TestDeviceEndIsImplicitStop(t *testing.T) {
	mic := newFakeMic()
	got := make(chan Payload, 1)
	s := New(mic, OnEnded(func(p Payload) { got <- p }))

	require.NoError(t, s.Start(context.Background()))
	stream := <-mic.streams
	stream.push([]byte("abc"))
	stream.end()

	select {
	case p := <-got:
		assert.Equal(t, "abc", string(p.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("OnEnded not called")
	}
	assert.IsType(t, Stopped{}, s.State())

	_, ok := s.Stop()
	assert.False(t, ok)
}

func TestElapsedTicks(t *testing.T) {
	mic := newFakeMic()
	ticks := make(chan int, 16)
	s := New(mic, WithTickInterval(10*time.Millisecond), OnTick(func(n int) { ticks <- n }))

	require.NoError(t, s.Start(context.Background()))
	for want := 1; want <= 3; want++ {
		select {
		case n := <-ticks:
			assert.Equal(t, want, n)
		case <-time.After(2 * time.Second):
			t.Fatal("no tick")
		}
	}
	s.Stop()

	// Drain anything in flight, then make sure the counter is dead.
	time.Sleep(30 * time.Millisecond)
	for len(ticks) > 0 {
		<-ticks
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ticks)
}

func TestStartedAtUsesClock(t *testing.T) {
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	s := New(newFakeMic(), WithClock(func() time.Time { return at }))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, at, s.State().(Recording).StartedAt)
	s.Close()
}

func TestFormatElapsed(t *testing.T) {
	for _, tt := range []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{59, "0:59"},
		{60, "1:00"},
		{125, "2:05"},
		{-3, "0:00"},
	} {
		assert.Equal(t, tt.want, FormatElapsed(tt.in), "FormatElapsed(%d)", tt.in)
	}
}
