package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiceops/log"
	"voiceops/recording"
)

const (
	TranscribePath = "/api/v1/transcribe"
	HealthPath     = "/health"
	FieldName      = "audio"

	DefaultTimeout = 120 * time.Second
)

// Client talks to the transcription backend.
type Client struct {
	http    *TracedClient
	baseURL string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    NewTracedClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type transcribeResponse struct {
	Text *string `json:"text"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

// Transcribe uploads p and returns the recognized text. Every failure is an
// *Error whose Message can be shown as is.
func (c *Client) Transcribe(ctx context.Context, p recording.Payload) (*Result, error) {
	requestID := uuid.NewString()

	body, contentType, err := multipartBody(p)
	if err != nil {
		return nil, c.fail(requestID, &Error{Message: GenericMessage, Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TranscribePath, body)
	if err != nil {
		return nil, c.fail(requestID, &Error{Message: GenericMessage, Err: err})
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(requestID, &Error{Message: GenericMessage, Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(requestID, &Error{
			Message:    detailMessage(resp.Body),
			StatusCode: resp.StatusCode,
		})
	}

	var tr transcribeResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return nil, c.fail(requestID, &Error{
			Message:    GenericMessage,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decoding response: %w", err),
		})
	}
	if tr.Text == nil {
		return nil, c.fail(requestID, &Error{
			Message:    GenericMessage,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response has no text field"),
		})
	}

	m := resp.Metrics
	log.TranscriptionMetrics(log.Metrics{
		RequestID:    requestID,
		ContentType:  p.ContentType,
		PayloadKB:    float64(p.Len()) / 1024,
		StatusCode:   resp.StatusCode,
		DNSTimeMs:    ms(m.DNS),
		ConnTimeMs:   ms(m.TCP),
		TLSTimeMs:    ms(m.TLS),
		TTFBMs:       ms(m.TTFB),
		TotalTimeMs:  ms(m.Total),
		ConnReused:   m.ConnReused,
		TLSProto:     m.TLSProtocol,
		TranscriptCh: len(*tr.Text),
	})

	return &Result{
		Text:      *tr.Text,
		RequestID: requestID,
		Metrics:   m,
		Server:    firstNonEmpty(resp.Header, "X-Request-ID", "Server"),
	}, nil
}

// Health checks that the backend answers on /health with a 2xx.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) fail(requestID string, e *Error) *Error {
	log.TranscriptionFailed(requestID, e.StatusCode, e)
	return e
}

func multipartBody(p recording.Payload) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	ct := p.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, filename(ct)))
	h.Set("Content-Type", ct)

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &body, writer.FormDataContentType(), nil
}

// detailMessage returns the backend's detail string, or GenericMessage.
func detailMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return GenericMessage
	}
	if s, ok := er.Detail.(string); ok && s != "" {
		return s
	}
	return GenericMessage
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
