package transcriber

import (
	"fmt"
	"net/http"
	"time"
)

// GenericMessage is shown when the backend gave no usable reason.
const GenericMessage = "Failed to transcribe audio. Please try again."

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Result struct {
	Text      string
	RequestID string
	Metrics   *NetworkMetrics
	// Server is the backend's own request id or server header, "?" if absent.
	Server string
}

// Error is a failed transcription. Message is safe to show to the user.
type Error struct {
	Message    string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("transcription failed (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("transcription failed: %s: %v", e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transcription failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "transcription failed: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// filename picks the upload name the backend uses to sniff the container.
func filename(contentType string) string {
	switch mediaType(contentType) {
	case "audio/webm":
		return "recording.webm"
	case "audio/flac", "audio/x-flac":
		return "recording.flac"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "recording.wav"
	case "audio/ogg":
		return "recording.ogg"
	}
	return "recording.bin"
}
