package transcriber

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voiceops/recording"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Request-ID", "abc")

	if got := firstNonEmpty(h, "X-Missing", "X-Request-ID"); got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestFilename(t *testing.T) {
	for _, tt := range []struct{ input, want string }{
		{"audio/webm", "recording.webm"},
		{"audio/webm;codecs=opus", "recording.webm"},
		{"audio/flac", "recording.flac"},
		{"AUDIO/FLAC", "recording.flac"},
		{"audio/wav", "recording.wav"},
		{"audio/ogg", "recording.ogg"},
		{"video/mp4", "recording.bin"},
		{"", "recording.bin"},
	} {
		t.Run(tt.input, func(t *testing.T) {
			if got := filename(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type upload struct {
	field, filename, contentType string
	data                         []byte
	parts                        int
	requestID                    string
}

// backend records the multipart upload and answers with status/body.
func backend(t *testing.T, status int, body string, got *upload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TranscribePath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			got.requestID = r.Header.Get("X-Request-ID")
			_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				t.Errorf("request content type: %v", err)
				return
			}
			mr := multipart.NewReader(r.Body, params["boundary"])
			for {
				p, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Errorf("NextPart: %v", err)
					return
				}
				got.parts++
				got.field = p.FormName()
				got.filename = p.FileName()
				got.contentType = p.Header.Get("Content-Type")
				got.data, _ = io.ReadAll(p)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribeUploadsConcatenatedChunks(t *testing.T) {
	var got upload
	srv := backend(t, http.StatusOK, `{"text":"hello world"}`, &got)

	first := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01}
	second := []byte{0x02, 0x03, 0x04}
	p := recording.Payload{ContentType: "audio/webm", Data: append(append([]byte{}, first...), second...)}

	res, err := New(srv.URL+"/", time.Second).Transcribe(context.Background(), p)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q", res.Text)
	}
	if got.parts != 1 {
		t.Fatalf("parts = %d, want 1", got.parts)
	}
	if got.field != FieldName || got.filename != "recording.webm" || got.contentType != "audio/webm" {
		t.Errorf("part = %q %q %q", got.field, got.filename, got.contentType)
	}
	if want := append(append([]byte{}, first...), second...); !bytes.Equal(got.data, want) {
		t.Errorf("part data = %x, want %x", got.data, want)
	}
	if got.requestID == "" || got.requestID != res.RequestID {
		t.Errorf("X-Request-ID = %q, result id = %q", got.requestID, res.RequestID)
	}
	if res.Metrics == nil || res.Metrics.Total <= 0 {
		t.Errorf("expected network metrics, got %+v", res.Metrics)
	}
}

func TestTranscribeEmptyTextIsSuccess(t *testing.T) {
	srv := backend(t, http.StatusOK, `{"text":""}`, nil)

	res, err := New(srv.URL, time.Second).Transcribe(context.Background(), recording.Payload{ContentType: "audio/flac"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail", http.StatusInternalServerError, `{"detail":"audio too short"}`, "audio too short"},
		{"detail on 4xx", http.StatusUnprocessableEntity, `{"detail":"unsupported format"}`, "unsupported format"},
		{"empty detail", http.StatusInternalServerError, `{"detail":""}`, GenericMessage},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","audio"],"msg":"field required"}]}`, GenericMessage},
		{"no json", http.StatusBadGateway, `<html>bad gateway</html>`, GenericMessage},
		{"no body", http.StatusServiceUnavailable, ``, GenericMessage},
		{"2xx invalid json", http.StatusOK, `not json`, GenericMessage},
		{"2xx missing text", http.StatusOK, `{"transcript":"hi"}`, GenericMessage},
		{"2xx null text", http.StatusOK, `{"text":null}`, GenericMessage},
		{"2xx non-string text", http.StatusOK, `{"text":42}`, GenericMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backend(t, tt.status, tt.body, nil)

			res, err := New(srv.URL, time.Second).Transcribe(context.Background(), recording.Payload{ContentType: "audio/flac", Data: []byte("x")})
			if res != nil {
				t.Fatalf("expected no result, got %+v", res)
			}
			var terr *Error
			if !errors.As(err, &terr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if terr.Message != tt.message {
				t.Errorf("Message = %q, want %q", terr.Message, tt.message)
			}
			if terr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", terr.StatusCode, tt.status)
			}
		})
	}
}

func TestTranscribeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Transcribe(context.Background(), recording.Payload{ContentType: "audio/flac"})
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if terr.Message != GenericMessage || terr.StatusCode != 0 || terr.Err == nil {
		t.Errorf("got %+v", terr)
	}
}

func TestTranscribeCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.URL, time.Second).Transcribe(ctx, recording.Payload{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}

func TestHealth(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			http.NotFound(w, r)
			return
		}
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"status":"healthy"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
	unhealthy.Store(true)
	if err := c.Health(context.Background()); err == nil {
		t.Error("expected error for 503")
	}
}
