package transcriber

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

const maxResponse = 1 << 20

// TracedClient is an http.Client that records per-request network timings.
type TracedClient struct {
	client *http.Client
}

func NewTracedClient(timeout time.Duration) *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// phaseClock stamps the httptrace hooks of one request into a NetworkMetrics.
type phaseClock struct {
	m *NetworkMetrics

	start, getConn, dns, dial, handshake time.Time
	conn, headers, sent, first           time.Time
}

func (p *phaseClock) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { p.getConn = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			p.conn = time.Now()
			p.m.ConnWait = p.conn.Sub(p.getConn)
			p.m.ConnReused = info.Reused
		},
		DNSStart:          func(httptrace.DNSStartInfo) { p.dns = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { p.m.DNS = time.Since(p.dns) },
		ConnectStart:      func(_, _ string) { p.dial = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { p.m.TCP = time.Since(p.dial) },
		TLSHandshakeStart: func() { p.handshake = time.Now() },
		TLSHandshakeDone: func(st tls.ConnectionState, _ error) {
			p.m.TLS = time.Since(p.handshake)
			p.m.TLSProtocol = st.NegotiatedProtocol
		},
		WroteHeaders: func() {
			p.headers = time.Now()
			p.m.ReqHeaders = p.headers.Sub(p.conn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			p.sent = time.Now()
			p.m.ReqBody = p.sent.Sub(p.headers)
		},
		GotFirstResponseByte: func() {
			p.first = time.Now()
			p.m.TTFB = p.first.Sub(p.sent)
		},
	}
}

// done closes the download and total phases once the body is read.
func (p *phaseClock) done() {
	if !p.first.IsZero() {
		p.m.Download = time.Since(p.first)
	}
	p.m.Total = time.Since(p.start)
}

// Do sends req and reads at most 1 MiB of the body.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	clock := &phaseClock{m: &NetworkMetrics{}, start: time.Now()}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), clock.trace()))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, err
	}
	clock.done()

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    clock.m,
	}, nil
}
