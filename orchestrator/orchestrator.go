package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"voiceops/log"
	"voiceops/recording"
	"voiceops/transcriber"
)

const DefaultRefreshDelay = time.Second

// ErrBusy is returned by OnStartPressed while a recording or submission is
// in progress.
var ErrBusy = recording.ErrBusy

type Phase int

const (
	Idle Phase = iota
	Recording
	Submitting
)

func (p Phase) String() string {
	switch p {
	case Recording:
		return "recording"
	case Submitting:
		return "submitting"
	}
	return "idle"
}

// Sink receives everything the display needs to know. Calls may come from
// any goroutine.
type Sink interface {
	RecordingStarted()
	RecordingTick(elapsed int)
	Submitting()
	Transcribed(text string)
	Failed(message string)
	// Idle means the session is ready again and the elapsed display is 0:00.
	Idle()
	// Cleared drops the previous transcript or error.
	Cleared()
}

type Transcriber interface {
	Transcribe(ctx context.Context, p recording.Payload) (*transcriber.Result, error)
}

type Refresher interface {
	RefreshNow()
}

// Outcome is the result of the last recording: a transcript or an error
// message.
type Outcome struct {
	Text    string
	Message string
	OK      bool
}

type Orchestrator struct {
	session      *recording.Session
	transcriber  Transcriber
	refresher    Refresher
	sink         Sink
	refreshDelay time.Duration
	baseCtx      context.Context

	mu      sync.Mutex
	last    *Outcome
	pending map[*time.Timer]struct{}
	closed  bool
}

type Option func(*Orchestrator)

func WithRefreshDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.refreshDelay = d
		}
	}
}

func WithRefresher(r Refresher) Option {
	return func(o *Orchestrator) { o.refresher = r }
}

func WithSink(s Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithContext bounds submissions triggered by the device ending on its own.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.baseCtx = ctx }
}

// New wires session and t together. It takes over the session's tick and
// ended callbacks.
func New(session *recording.Session, t Transcriber, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:      session,
		transcriber:  t,
		sink:         nopSink{},
		refreshDelay: DefaultRefreshDelay,
		baseCtx:      context.Background(),
		pending:      make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	session.SetOnTick(func(elapsed int) { o.sink.RecordingTick(elapsed) })
	session.SetOnEnded(func(recording.Payload) { o.submit(o.baseCtx) })
	return o
}

func (o *Orchestrator) Phase() Phase {
	switch o.session.State().(type) {
	case recording.Starting, recording.Recording:
		return Recording
	case recording.Stopped, recording.Submitting:
		return Submitting
	}
	return Idle
}

// Last returns the outcome of the most recent recording, if any.
func (o *Orchestrator) Last() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Outcome{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) OnStartPressed(ctx context.Context) error {
	if o.Phase() != Idle {
		return ErrBusy
	}

	o.setLast(nil)
	o.sink.Cleared()

	err := o.session.Start(ctx)
	if err == nil {
		o.sink.RecordingStarted()
		return nil
	}
	if errors.Is(err, recording.ErrBusy) {
		return ErrBusy
	}

	var perr *recording.PermissionError
	msg := recording.PermissionMessage
	if errors.As(err, &perr) {
		msg = perr.UserMessage()
	}
	o.setLast(&Outcome{Message: msg})
	o.sink.Failed(msg)
	return err
}

// OnStopPressed stops the recording and submits it. It blocks until the
// transcription resolved and does nothing unless a recording is running.
func (o *Orchestrator) OnStopPressed(ctx context.Context) {
	if _, ok := o.session.Stop(); !ok {
		return
	}
	o.submit(ctx)
}

func (o *Orchestrator) submit(ctx context.Context) {
	p, ok := o.session.BeginSubmit()
	if !ok {
		return
	}
	o.sink.Submitting()

	res, err := o.transcriber.Transcribe(ctx, p)

	o.session.Finish()
	o.sink.Idle()

	if err != nil {
		msg := transcriber.GenericMessage
		var terr *transcriber.Error
		if errors.As(err, &terr) {
			msg = terr.Message
		}
		o.setLast(&Outcome{Message: msg})
		o.sink.Failed(msg)
		return
	}

	log.TranscriptionText(res.Text)
	o.setLast(&Outcome{Text: res.Text, OK: true})
	o.sink.Transcribed(res.Text)
	o.scheduleRefresh()
}

func (o *Orchestrator) setLast(out *Outcome) {
	o.mu.Lock()
	o.last = out
	o.mu.Unlock()
}

func (o *Orchestrator) scheduleRefresh() {
	if o.refresher == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(o.refreshDelay, func() {
		o.mu.Lock()
		_, live := o.pending[t]
		delete(o.pending, t)
		o.mu.Unlock()
		if live {
			o.refresher.RefreshNow()
		}
	})
	o.pending[t] = struct{}{}
}

// Close cancels delayed refreshes and releases the microphone.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for t := range o.pending {
		t.Stop()
		delete(o.pending, t)
	}
	o.mu.Unlock()

	o.session.Close()
}

type nopSink struct{}

func (nopSink) RecordingStarted()  {}
func (nopSink) RecordingTick(int)  {}
func (nopSink) Submitting()        {}
func (nopSink) Transcribed(string) {}
func (nopSink) Failed(string)      {}
func (nopSink) Idle()              {}
func (nopSink) Cleared()           {}
