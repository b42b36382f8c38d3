package recording

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"voiceops/audio"
	"voiceops/log"
)

const DefaultTickInterval = time.Second

// Session owns the microphone for one recording at a time.
//
//	Idle -> Starting -> Recording -> Stopped -> Submitting -> Idle
//
// Starting falls back to Idle when the microphone cannot be acquired.
type Session struct {
	mic          audio.Microphone
	tickInterval time.Duration
	now          func() time.Time
	onTick       func(elapsed int)
	onEnded      func(Payload)

	mu    sync.Mutex
	state State
	take  *take
}

// take holds the resources of the recording in progress.
type take struct {
	id        string
	stream    audio.Stream
	collected chan [][]byte
	drained   chan struct{}
	stopTick  chan struct{}

	// tickMu spans a tick's callback so no tick is delivered after finalize.
	tickMu sync.Mutex
}

type Option func(*Session)

func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickInterval = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// OnTick is called with the elapsed seconds every tick while recording.
func OnTick(fn func(elapsed int)) Option {
	return func(s *Session) { s.onTick = fn }
}

// OnEnded receives the payload when the device stream ends on its own.
// The session is left in Stopped, exactly as after Stop.
func OnEnded(fn func(Payload)) Option {
	return func(s *Session) { s.onEnded = fn }
}

func New(mic audio.Microphone, opts ...Option) *Session {
	s := &Session{
		mic:          mic,
		tickInterval: DefaultTickInterval,
		now:          time.Now,
		state:        Idle{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetOnEnded replaces the callback for device-ended stops.
func (s *Session) SetOnEnded(fn func(Payload)) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// SetOnTick replaces the elapsed-time callback.
func (s *Session) SetOnTick(fn func(elapsed int)) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the microphone and begins capturing. It fails with ErrBusy
// unless the session is Idle, and with *PermissionError when the device
// cannot be opened.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if _, ok := s.state.(Idle); !ok {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Starting{}
	s.mu.Unlock()

	stream, err := s.mic.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Idle{}
		log.Warnf("microphone open failed: %v", err)
		return &PermissionError{Err: err}
	}

	t := &take{
		id:        uuid.NewString(),
		stream:    stream,
		collected: make(chan [][]byte, 1),
		drained:   make(chan struct{}),
		stopTick:  make(chan struct{}),
	}
	s.take = t
	s.state = Recording{ID: t.id, StartedAt: s.now()}
	log.RecordingStart(t.id, stream.ContentType())

	go s.collect(t)
	go s.tick(t)
	go s.watch(t)
	return nil
}

// Stop finalizes the recording into a payload and releases the microphone.
// It reports false, and does nothing, unless the session is Recording.
func (s *Session) Stop() (Payload, bool) {
	s.mu.Lock()
	t := s.take
	s.mu.Unlock()
	if t == nil {
		return Payload{}, false
	}
	return s.finalize(t)
}

// BeginSubmit hands out the stopped payload and moves to Submitting.
func (s *Session) BeginSubmit() (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.(Stopped)
	if !ok {
		return Payload{}, false
	}
	s.state = Submitting{}
	return st.Payload, true
}

// Finish returns a Stopped or Submitting session to Idle and drops the payload.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.(type) {
	case Stopped, Submitting:
		s.state = Idle{}
	}
}

// Close stops any recording in progress and discards its payload.
func (s *Session) Close() {
	s.Stop()
	s.Finish()
}

func (s *Session) finalize(t *take) (Payload, bool) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.(Recording)
	if !ok || s.take != t {
		return Payload{}, false
	}

	close(t.stopTick)
	closeErr := t.stream.Close()
	chunks := <-t.collected
	stats := t.stream.Stats()

	p := Payload{
		ContentType: t.stream.ContentType(),
		Data:        bytes.Join(chunks, nil),
		Frames:      stats.Frames,
	}
	s.take = nil
	s.state = Stopped{Payload: p}

	if closeErr != nil {
		log.Warnf("capture stream close: %v", closeErr)
	}
	log.RecordingStop(log.Recording{
		ID:         t.id,
		Chunks:     len(chunks),
		Bytes:      p.Len(),
		Elapsed:    rec.Elapsed,
		Frames:     stats.Frames,
		EncodeTime: stats.EncodeTime,
	})
	return p, true
}

func (s *Session) collect(t *take) {
	var chunks [][]byte
	for c := range t.stream.Chunks() {
		if len(c) > 0 {
			chunks = append(chunks, c)
		}
	}
	t.collected <- chunks
	close(t.drained)
}

// watch turns an unexpected end of the device stream into a Stop.
func (s *Session) watch(t *take) {
	<-t.drained
	p, ok := s.finalize(t)
	if !ok {
		return
	}
	log.Info("capture_ended")

	s.mu.Lock()
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (s *Session) tick(t *take) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopTick:
			return
		case <-ticker.C:
		}
		if !s.advance(t) {
			return
		}
	}
}

func (s *Session) advance(t *take) bool {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	s.mu.Lock()
	rec, ok := s.state.(Recording)
	if !ok || s.take != t {
		s.mu.Unlock()
		return false
	}
	rec.Elapsed++
	s.state = rec
	fn := s.onTick
	s.mu.Unlock()

	if fn != nil {
		fn(rec.Elapsed)
	}
	return true
}
