// Package fetch issues JSON GET requests with retry and backoff.
//
// Transient failures (transport errors, 5xx, 429, undecodable 200 bodies)
// are retried up to a fixed budget. When the budget runs out, or the server
// answers with a non-transient status, the caller gets ErrNoResponse instead
// of the underlying failure.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoResponse is the definitive "no response" signal.
var ErrNoResponse = errors.New("fetch: no response")

// Config tunes timeouts and the retry budget.
type Config struct {
	Timeout           time.Duration // per request. Default: 10s.
	MaxAttempts       int           // Default: 5.
	Backoff           time.Duration // first wait after a transient failure. Default: 2s.
	MaxBackoff        time.Duration // cap for the doubling backoff. Default: 30s.
	RateLimitCooldown time.Duration // wait after HTTP 429. Default: 30s.
	UserAgent         string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "issue-harvester/1.0"
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithSleeper replaces the function used to wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithHTTPClient makes resty use hc as its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = resty.NewWithClient(hc) }
}

// Client performs GET requests with retry.
type Client struct {
	http  *resty.Client
	cfg   Config
	sleep Sleeper
	log   *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{http: resty.New(), cfg: cfg, sleep: SleepContext, log: logger}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetTimeout(cfg.Timeout)
	c.http.SetHeader("User-Agent", cfg.UserAgent)
	c.http.SetRetryCount(0)
	return c
}

// attemptError is a failed attempt together with the wait before the next.
type attemptError struct {
	wait      time.Duration
	transient bool
	err       error
}

// GetJSON fetches rawURL and decodes the JSON body of a 200 response into
// out. It returns nil on success, ErrNoResponse (wrapped) when no usable
// response was obtained, or the context error when ctx is done.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, params url.Values, out any) error {
	var last *attemptError
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		ae := c.try(ctx, rawURL, headers, params, out, attempt)
		if ae == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		last = ae

		if !ae.transient {
			c.log.Warn("request failed permanently",
				slog.String("url", rawURL),
				slog.Any("err", ae.err),
			)
			return fmt.Errorf("%w: %v", ErrNoResponse, ae.err)
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		c.log.Warn("request failed, retrying",
			slog.String("url", rawURL),
			slog.Any("err", ae.err),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxAttempts),
			slog.Duration("retry_in", ae.wait),
		)
		if err := c.sleep(ctx, ae.wait); err != nil {
			return err
		}
	}

	c.log.Error("request retries exhausted",
		slog.String("url", rawURL),
		slog.Int("attempts", c.cfg.MaxAttempts),
		slog.Any("err", last.err),
	)
	return fmt.Errorf("%w after %d attempts: %v", ErrNoResponse, c.cfg.MaxAttempts, last.err)
}

func (c *Client) try(ctx context.Context, rawURL string, headers map[string]string, params url.Values, out any, attempt int) *attemptError {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParamsFromValues(params).
		Get(rawURL)
	if err != nil {
		return &attemptError{wait: c.backoff(attempt), transient: true, err: fmt.Errorf("http get: %w", err)}
	}

	status := res.StatusCode()
	switch {
	case status == http.StatusOK:
		if err := json.Unmarshal(res.Body(), out); err != nil {
			return &attemptError{wait: c.backoff(attempt), transient: true, err: fmt.Errorf("decode body: %w", err)}
		}
		return nil
	case status == http.StatusTooManyRequests:
		return &attemptError{wait: c.cfg.RateLimitCooldown, transient: true, err: fmt.Errorf("http %d", status)}
	case status >= 500 && status < 600:
		return &attemptError{wait: c.backoff(attempt), transient: true, err: fmt.Errorf("http %d", status)}
	default:
		return &attemptError{err: fmt.Errorf("http %d", status)}
	}
}

// backoff doubles the base wait per attempt up to MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	return d
}
