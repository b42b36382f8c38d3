package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag absolute", "/tmp/mylog", "/tmp/ignored", "/tmp/mylog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"env absolute", "", "/tmp/voiceops-env-log", "/tmp/voiceops-env-log"},
		{"env relative", "", "envlogs", filepath.Join(wd, "envlogs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogPath, tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(EnvLogPath, "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "voiceops") {
		t.Errorf("default dir %q does not mention voiceops", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{DiagnosticsFile, TranscriptsFile} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	Close()
	// None of these may panic or write anywhere.
	Info("x")
	Warnf("x %d", 1)
	RecordingStart("id", "audio/flac")
	RecordingStop(Recording{ID: "id", Chunks: 1})
	MetricsPollFailed("http://x/metrics", errors.New("boom"))
	TranscriptionText("nothing")
}

func TestTranscriptionText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	TranscriptionText("hello world")

	line := readLog(t, tmp, TranscriptsFile)
	if !strings.Contains(line, "hello world") {
		t.Errorf("%s missing text, got: %q", TranscriptsFile, line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\ttext\n"
	if strings.Count(line, "\t") != 2 || !strings.HasSuffix(line, "\n") {
		t.Errorf("expected tab-separated line, got: %q", line)
	}
}

func TestStructuredEvents(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	RecordingStart("rec-1", "audio/flac")
	RecordingStop(Recording{ID: "rec-1", Chunks: 3, Bytes: 2048, Elapsed: 4, Frames: 64000, EncodeTime: 1500 * time.Microsecond})
	MetricsPollFailed("http://localhost:8000/metrics", errors.New("connection refused"))
	TranscriptionMetrics(Metrics{RequestID: "req-9", StatusCode: 200, ConnReused: true})
	TranscriptionFailed("req-10", 500, errors.New("audio too short"))

	got := readLog(t, tmp, DiagnosticsFile)
	for _, want := range []string{
		"recording_start", "recording=rec-1", "content_type=audio/flac",
		"recording_stop", "chunks=3", "kb=2", "frames=64000", "encode_ms=1.5",
		"metrics_poll_failed", "connection refused",
		"transcription", "request_id=req-9", "conn=reused",
		"transcription_failed", "audio too short",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, got)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
