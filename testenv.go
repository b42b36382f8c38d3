package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"voiceops/audio"
	"voiceops/config"
	"voiceops/log"
	"voiceops/metrics"
	"voiceops/orchestrator"
	"voiceops/recording"
	"voiceops/transcriber"
)

// trackingContext remembers the last fake capture so WAIT_AUDIO_DONE can
// block on it.
type trackingContext struct {
	*audio.FakeContext

	mu   sync.Mutex
	last *audio.FakeCapture
}

func (t *trackingContext) NewCapture(dev *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	c, err := t.FakeContext.NewCapture(dev, cfg)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.last = c.(*audio.FakeCapture)
	t.mu.Unlock()
	return c, nil
}

func (t *trackingContext) audioDone() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	return t.last.AudioDone()
}

// lineSink prints orchestrator events one per line.
type lineSink struct {
	mu       sync.Mutex
	out      io.Writer
	outcomes chan struct{}
}

func (s *lineSink) printf(format string, args ...any) {
	s.mu.Lock()
	fmt.Fprintf(s.out, format+"\n", args...)
	s.mu.Unlock()
}

func (s *lineSink) resolved() {
	select {
	case s.outcomes <- struct{}{}:
	default:
	}
}

func (s *lineSink) RecordingStarted()   { s.printf("RECORDING") }
func (s *lineSink) RecordingTick(n int) { s.printf("TICK %s", recording.FormatElapsed(n)) }
func (s *lineSink) Submitting()         { s.printf("SUBMITTING") }
func (s *lineSink) Idle()               { s.printf("IDLE %s", recording.FormatElapsed(0)) }
func (s *lineSink) Cleared()            {}

func (s *lineSink) Transcribed(text string) {
	s.printf("TRANSCRIPT %s", text)
	s.resolved()
}

func (s *lineSink) Failed(message string) {
	s.printf("ERROR %s", message)
	s.resolved()
}

func runTestMode(ctx context.Context, cfg config.Config, client *transcriber.Client, wavPath string) int {
	fake, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	fake.EndOnEOF = os.Getenv("VOICEOPS_TEST_END_ON_EOF") != ""
	tracking := &trackingContext{FakeContext: fake}

	log.SessionStart(cfg.APIBaseURL, "fake", audioFormat)

	sink := &lineSink{out: os.Stdout, outcomes: make(chan struct{}, 1)}
	poller := newPoller(cfg, metrics.OnUpdate(func(s metrics.Summary) {
		sink.printf("METRICS success=%d error=%d total=%d avg=%s",
			s.Requests.Success, s.Requests.Error, s.Total(), s.AvgProcessing)
	}))
	orch := orchestrator.New(
		recording.New(audio.NewMicrophone(tracking, nil, audioFormat)),
		client,
		orchestrator.WithSink(sink),
		orchestrator.WithRefresher(poller),
		orchestrator.WithRefreshDelay(cfg.RefreshDelay),
		orchestrator.WithContext(ctx),
	)
	defer orch.Close()

	poller.Start(ctx)
	defer poller.Stop()

	count := 0
	var stops sync.WaitGroup
	defer stops.Wait()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return 1
		}
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "START":
			if err := orch.OnStartPressed(ctx); errors.Is(err, orchestrator.ErrBusy) {
				sink.printf("BUSY")
			}
		case cmd == "STOP":
			count++
			stops.Add(1)
			go func() {
				defer stops.Done()
				orch.OnStopPressed(ctx)
			}()
		case cmd == "WAIT":
			select {
			case <-sink.outcomes:
			case <-ctx.Done():
				return 1
			}
		case cmd == "WAIT_AUDIO_DONE":
			if done := tracking.audioDone(); done != nil {
				<-done
			}
		case cmd == "METRICS":
			if err := poller.Refresh(ctx); err != nil {
				sink.printf("METRICS_FAILED %v", err)
			}
		case cmd == "QUIT":
			log.SessionEnd(count)
			return 0
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
	}
	log.SessionEnd(count)
	return 0
}
