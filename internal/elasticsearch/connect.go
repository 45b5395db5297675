package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ConnectOptions bound the startup wait for the cluster.
type ConnectOptions struct {
	Attempts    int
	Delay       time.Duration
	MaxDelay    time.Duration
	PingTimeout time.Duration
}

func (o *ConnectOptions) defaults() {
	if o.Attempts <= 0 {
		o.Attempts = 10
	}
	if o.Delay <= 0 {
		o.Delay = 2 * time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
}

// Connect creates a client and waits until the cluster answers a ping,
// backing off exponentially between attempts.
func Connect(ctx context.Context, addr, index string, logger *slog.Logger, opts ConnectOptions) (*Client, error) {
	opts.defaults()
	client, err := New(addr, index, logger)
	if err != nil {
		return nil, err
	}

	delay := opts.Delay
	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		lastErr = client.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			client.log.Info("connected to elasticsearch", slog.String("addr", addr))
			return client, nil
		}
		if attempt == opts.Attempts {
			break
		}

		client.log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", opts.Attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return nil, fmt.Errorf("connect to elasticsearch after %d attempts: %w", opts.Attempts, lastErr)
}
