package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"voiceops/audio"
	"voiceops/config"
	"voiceops/doctor"
	"voiceops/hotkey"
	"voiceops/log"
	"voiceops/metrics"
	"voiceops/orchestrator"
	"voiceops/recording"
	"voiceops/shutdown"
	"voiceops/transcriber"
)

var version = "dev"

const audioFormat = "flac"

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

// newPoller builds the metrics poller for cfg. A poll never outlives its
// interval, so a hung backend cannot stack requests.
func newPoller(cfg config.Config, opts ...metrics.PollerOption) *metrics.Poller {
	timeout := min(cfg.PollInterval, 10*time.Second)
	return metrics.NewPoller(cfg.APIBaseURL, append([]metrics.PollerOption{
		metrics.WithInterval(cfg.PollInterval),
		metrics.WithNames(cfg.Metrics),
		metrics.WithHTTPClient(&http.Client{Timeout: timeout}),
	}, opts...)...)
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func run() int {
	apiFlag := flag.String("api", "", "Backend base URL (default from "+config.EnvAPIBaseURL+" or "+config.DefaultAPIBaseURL+")")
	intervalFlag := flag.Duration("interval", config.DefaultPollInterval, "Metrics polling interval")
	refreshDelayFlag := flag.Duration("refresh-delay", config.DefaultRefreshDelay, "Delay before refreshing metrics after a transcription")
	timeoutFlag := flag.Duration("timeout", config.DefaultRequestTimeout, "Transcription request timeout")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	hotkeyFlag := flag.Bool("hotkey", false, "Also start/stop with the global Ctrl+Shift+Space hotkey (tap to toggle, hold to talk)")
	longPressFlag := flag.Duration("longpress", config.DefaultLongPress, "Hotkey hold threshold separating hold-to-talk from tap-to-toggle")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	envFlag := flag.String("env", config.DefaultEnvFile, "Optional .env file with configuration")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.String("test", "", "Test mode: replay this WAV file as the microphone, driven by stdin")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	_, _ = hotkeyFlag, longPressFlag

	if *versionFlag {
		fmt.Printf("voiceops %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	} else {
		initCrashLog()
	}

	cfg, err := config.Load(*envFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api":
			cfg = cfg.WithBaseURL(*apiFlag)
		case "interval":
			cfg.PollInterval = *intervalFlag
		case "refresh-delay":
			cfg.RefreshDelay = *refreshDelayFlag
		case "timeout":
			cfg.RequestTimeout = *timeoutFlag
		case "device":
			cfg.Device = *deviceFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	client := transcriber.New(cfg.APIBaseURL, cfg.RequestTimeout)

	if *testFlag != "" {
		return runTestMode(ctx, cfg, client, *testFlag)
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		return 1
	}
	defer audioCtx.Close()

	var device *audio.DeviceInfo
	if *setupFlag && cfg.Device == "" {
		device, err = audio.SelectDevice(audioCtx)
		if errors.Is(err, audio.ErrSelectionAborted) {
			return 0
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			device = nil
		}
	} else if device, err = audio.FindDevice(audioCtx, cfg.Device); err != nil {
		log.Warnf("device lookup failed: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v, using system default\n", err)
		device = nil
	}
	mic := audio.NewMicrophone(audioCtx, device, audioFormat)

	if *doctorFlag {
		o := doctor.Options{
			Client: client,
			Poller: newPoller(cfg),
			Mic:    mic,
			Out:    os.Stdout,
		}
		if cfg.Hotkey {
			o.Hotkey = hotkey.Diagnose
		}
		return doctor.Run(ctx, o)
	}

	devLine := deviceLineText(device)
	log.SessionStart(cfg.APIBaseURL, devLine, audioFormat)

	var program *tea.Program
	send := func(msg tea.Msg) { program.Send(msg) }

	poller := newPoller(cfg, metrics.OnUpdate(func(s metrics.Summary) { send(MetricsMsg{Summary: s}) }))
	orch := orchestrator.New(recording.New(mic), client,
		orchestrator.WithSink(teaSink{send: send}),
		orchestrator.WithRefresher(poller),
		orchestrator.WithRefreshDelay(cfg.RefreshDelay),
		orchestrator.WithContext(ctx),
	)
	defer orch.Close()

	model := newTUIModel(ctx, orch, client.Health, "api: "+cfg.APIBaseURL, devLine)
	model.hotkey = cfg.Hotkey
	program = NewTUIProgram(model)

	var hk hotkey.Hotkey
	if cfg.Hotkey {
		hk = hotkey.New()
		if err := hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
			return 1
		}
		defer hk.Unregister()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	if hk != nil {
		g.Go(func() error {
			hotkey.Drive(gctx, hotkey.NewHybrid(gctx, hk, cfg.LongPress), orch)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Errorf("%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
