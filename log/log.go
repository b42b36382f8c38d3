package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DiagnosticsFile = "diagnostics_log.txt"
	TranscriptsFile = "transcribe_log.txt"
	EnvLogPath      = "VOICEOPS_LOG_PATH"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       atomic.Bool
	pid            int
	dir            string
)

// Metrics describes one transcription round trip.
type Metrics struct {
	RequestID    string
	ContentType  string
	PayloadKB    float64
	StatusCode   int
	DNSTimeMs    float64
	ConnTimeMs   float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
	TLSProto     string
	TranscriptCh int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: environment
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: OS default
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, DiagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribeFile, err = os.OpenFile(filepath.Join(dir, TranscriptsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		diagFile = nil
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady.Store(true)
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady.Store(false)
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
}

func Info(msg string) {
	if logReady.Load() {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady.Load() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady.Load() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(apiBase, device, format string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("api", apiBase).
		Str("device", device).
		Str("format", format).
		Msg("session_start")
}

func RecordingStart(id, contentType string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("recording", id).
		Str("content_type", contentType).
		Msg("recording_start")
}

// Recording summarizes a finished recording.
type Recording struct {
	ID         string
	Chunks     int
	Bytes      int
	Elapsed    int // seconds
	Frames     uint64
	EncodeTime time.Duration
}

func RecordingStop(r Recording) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("recording", r.ID).
		Int("chunks", r.Chunks).
		Float64("kb", float64(r.Bytes)/1024).
		Int("elapsed_s", r.Elapsed).
		Uint64("frames", r.Frames).
		Float64("encode_ms", float64(r.EncodeTime.Microseconds())/1000).
		Msg("recording_stop")
}

func TranscriptionMetrics(m Metrics) {
	if !logReady.Load() {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info().
		Str("request_id", m.RequestID).
		Str("content_type", m.ContentType).
		Str("conn", connStatus)
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	ev.Int("status", m.StatusCode).
		Float64("payload_kb", m.PayloadKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("conn_ms", m.ConnTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Int("text_chars", m.TranscriptCh).
		Msg("transcription")
}

func TranscriptionFailed(requestID string, status int, err error) {
	if !logReady.Load() {
		return
	}
	diagLog.Error().
		Str("request_id", requestID).
		Int("status", status).
		Err(err).
		Msg("transcription_failed")
}

func MetricsPollFailed(url string, err error) {
	if !logReady.Load() {
		return
	}
	diagLog.Warn().
		Str("url", url).
		Err(err).
		Msg("metrics_poll_failed")
}

func MetricsUpdated(success, failed uint64, avg string) {
	if !logReady.Load() {
		return
	}
	diagLog.Debug().
		Uint64("success", success).
		Uint64("error", failed).
		Str("avg_s", avg).
		Msg("metrics_updated")
}

func TranscriptionText(text string) {
	if !logReady.Load() {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionEnd(count int) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
