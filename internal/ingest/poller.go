package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval is how often the poller probes for changes.
const DefaultPollInterval = 5 * time.Minute

// Poller probes a URL with conditional requests and invokes a callback
// when the remote content changes. Change detection uses the ETag (or
// Last-Modified as a fallback) from a HEAD request so unchanged data
// costs one small round trip per tick.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	onChange func(context.Context)

	lastTag string
}

// NewPoller creates a poller that calls onChange when url's content
// changes. interval <= 0 falls back to DefaultPollInterval.
func NewPoller(url string, interval time.Duration, onChange func(context.Context), opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: defaultFetchTimeout},
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerClient overrides the HTTP client, mainly for tests.
func WithPollerClient(c *http.Client) PollerOption {
	return func(p *Poller) { p.client = c }
}

// WithPollerLogger sets the structured logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// Run polls until ctx is cancelled. The first tick always reports a
// change so a fresh process loads immediately.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		changed, err := p.Probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("poll probe failed", slog.String("error", err.Error()))
			continue
		}
		if changed && p.onChange != nil {
			p.onChange(ctx)
		}
	}
}

// Probe performs one conditional check and reports whether the remote
// content changed since the previous probe.
func (p *Poller) Probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()

	tag := resp.Header.Get("ETag")
	if tag == "" {
		tag = resp.Header.Get("Last-Modified")
	}
	if tag == "" {
		// No validator to compare; treat every probe as a change.
		return true, nil
	}
	if tag == p.lastTag {
		return false, nil
	}
	p.lastTag = tag
	return true, nil
}
