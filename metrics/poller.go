package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voiceops/log"
)

const (
	DefaultInterval = 5 * time.Second
	Path            = "/metrics"

	maxPayload = 4 << 20
)

// Poller keeps the latest Summary of a metrics endpoint. Only the poller
// goroutine writes the published summary.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	names    Names
	onUpdate func(Summary)

	latest  atomic.Pointer[Summary]
	refresh chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithHTTPClient(c *http.Client) PollerOption {
	return func(p *Poller) { p.client = c }
}

func WithNames(n Names) PollerOption {
	return func(p *Poller) { p.names = n }
}

// OnUpdate is called from the poller goroutine after every successful parse.
func OnUpdate(fn func(Summary)) PollerOption {
	return func(p *Poller) { p.onUpdate = fn }
}

// NewPoller polls {baseURL}/metrics.
func NewPoller(baseURL string, opts ...PollerOption) *Poller {
	p := &Poller{
		url:      strings.TrimRight(baseURL, "/") + Path,
		interval: DefaultInterval,
		client:   &http.Client{Timeout: 10 * time.Second},
		names:    DefaultNames,
		refresh:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Poller) URL() string { return p.url }

// Latest returns the last successfully parsed summary, if any.
func (p *Poller) Latest() (Summary, bool) {
	s := p.latest.Load()
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}

// RefreshNow asks the running poller for an out-of-schedule fetch. Requests
// made while one is already pending are coalesced.
func (p *Poller) RefreshNow() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Refresh fetches and publishes once. On failure the previous summary is
// kept and a *FetchError or *ParseError is returned.
func (p *Poller) Refresh(ctx context.Context) error {
	body, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	s, err := p.names.Decode(body)
	if err != nil {
		return err
	}
	p.latest.Store(&s)
	log.MetricsUpdated(s.Requests.Success, s.Requests.Error, s.AvgProcessing.String())
	if p.onUpdate != nil {
		p.onUpdate(s)
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", &FetchError{URL: p.url, Err: err}
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: p.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayload))
		return "", &FetchError{URL: p.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return "", &FetchError{URL: p.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	return string(body), nil
}

// Run polls until ctx is done. The first fetch happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.refresh:
		}
		p.poll(ctx)
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.MetricsPollFailed(p.url, err)
	}
}

// Start runs the poller in a goroutine until Stop or ctx cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
