package doctor

import (
	"context"
	"fmt"
	"io"
	"time"

	"voiceops/audio"
	"voiceops/clipboard"
	"voiceops/encoder"
	"voiceops/metrics"
	"voiceops/recording"
	"voiceops/transcriber"
)

const DefaultCaptureTime = 2 * time.Second

type Options struct {
	Client *transcriber.Client
	Poller *metrics.Poller
	// Mic is skipped when nil.
	Mic         audio.Microphone
	CaptureTime time.Duration
	// Hotkey checks that the global hotkey can be opened; the check is skipped when nil.
	Hotkey func() (string, error)
	Out    io.Writer
}

type check struct {
	title string
	run   func(ctx context.Context, o Options) (string, error)
	// soft failures are reported but do not fail the run
	soft bool
}

var checks = []check{
	{title: "Backend health", run: checkHealth},
	{title: "Metrics endpoint", run: checkMetrics},
	{title: "Microphone capture", run: checkMicrophone},
	{title: "Clipboard", run: checkClipboard, soft: true},
	{title: "Global hotkey", run: checkHotkey},
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, o Options) int {
	if o.CaptureTime <= 0 {
		o.CaptureTime = DefaultCaptureTime
	}

	fmt.Fprintln(o.Out, "voiceops doctor - system diagnostics")
	fmt.Fprintln(o.Out, "====================================")

	allPass := true
	for i, c := range checks {
		fmt.Fprintln(o.Out)
		fmt.Fprintf(o.Out, "[%d/%d] %s\n", i+1, len(checks), c.title)

		detail, err := c.run(ctx, o)
		switch {
		case err == nil:
			fmt.Fprintf(o.Out, "  PASS: %s\n", detail)
		case c.soft:
			fmt.Fprintf(o.Out, "  WARN: %v\n", err)
		default:
			fmt.Fprintf(o.Out, "  FAIL: %v\n", err)
			allPass = false
		}
		if ctx.Err() != nil {
			fmt.Fprintln(o.Out, "\nInterrupted")
			return 1
		}
	}

	fmt.Fprintln(o.Out)
	if allPass {
		fmt.Fprintln(o.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(o.Out, "Some checks failed. See details above.")
	return 1
}

func checkHealth(ctx context.Context, o Options) (string, error) {
	if err := o.Client.Health(ctx); err != nil {
		return "", err
	}
	return o.Client.BaseURL() + transcriber.HealthPath + " is up", nil
}

func checkMetrics(ctx context.Context, o Options) (string, error) {
	if err := o.Poller.Refresh(ctx); err != nil {
		return "", err
	}
	s, _ := o.Poller.Latest()
	return fmt.Sprintf("%d success / %d error, avg %s s", s.Requests.Success, s.Requests.Error, s.AvgProcessing), nil
}

func checkMicrophone(ctx context.Context, o Options) (string, error) {
	if o.Mic == nil {
		return "skipped (no microphone configured)", nil
	}

	session := recording.New(o.Mic)
	if err := session.Start(ctx); err != nil {
		return "", err
	}
	defer session.Close()

	fmt.Fprint(o.Out, "  Recording")
	deadline := time.After(o.CaptureTime)
	dots := time.NewTicker(500 * time.Millisecond)
	defer dots.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(o.Out)
			return "", ctx.Err()
		case <-dots.C:
			fmt.Fprint(o.Out, ".")
		case <-deadline:
			break wait
		}
	}
	fmt.Fprintln(o.Out, " done")

	p, ok := session.Stop()
	if !ok {
		// The device ended by itself; the payload is parked in Stopped.
		p, ok = session.BeginSubmit()
	}
	if !ok || p.Frames == 0 {
		return "", fmt.Errorf("no audio captured")
	}
	return fmt.Sprintf("captured %.1f s (%.1f KB of %s)",
		float64(p.Frames)/encoder.SampleRate, float64(p.Len())/1024, p.ContentType), nil
}

func checkClipboard(_ context.Context, _ Options) (string, error) {
	if !clipboard.Available() {
		return "", clipboard.ErrUnsupported
	}
	return "system clipboard available", nil
}

func checkHotkey(_ context.Context, o Options) (string, error) {
	if o.Hotkey == nil {
		return "skipped (hotkey disabled)", nil
	}
	return o.Hotkey()
}
