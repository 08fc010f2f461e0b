package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lotusgift/pkg/metrics"
	"lotusgift/pkg/types"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 300
	DefaultRetryBudget = 5
)

// StatusReader is the read side of the engine client.
type StatusReader interface {
	Status(ctx context.Context, txHash string) (*types.StatusResponse, error)
}

// Waiter blocks for d or until ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

// Observer is called with every status the engine reports.
type Observer func(attempt int, status types.OrderStatus)

// Poller reads the order status until it becomes terminal.
type Poller struct {
	reader      StatusReader
	interval    time.Duration
	maxAttempts int
	retryBudget int
	wait        Waiter
	observe     Observer
	log         zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the wait between status reads.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts caps the number of status reads.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryBudget sets how many consecutive failed reads are tolerated.
func WithRetryBudget(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.retryBudget = n
		}
	}
}

// WithWaiter replaces the sleep between reads, mostly for tests.
func WithWaiter(w Waiter) Option {
	return func(p *Poller) { p.wait = w }
}

// WithObserver registers a callback run after every successful read.
func WithObserver(o Observer) Option {
	return func(p *Poller) { p.observe = o }
}

// WithLogger sets the poller logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// New creates a poller that reads status from reader.
func New(reader StatusReader, opts ...Option) *Poller {
	p := &Poller{
		reader:      reader,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		retryBudget: DefaultRetryBudget,
		wait:        sleep,
		log:         log.With().Str("component", "status-poller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AwaitTerminal polls until the order reaches a terminal status. It returns
// the last observed status, empty if none was read, together with any error.
func (p *Poller) AwaitTerminal(ctx context.Context, txHash string) (types.OrderStatus, error) {
	var last types.OrderStatus
	failures := 0

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.wait(ctx, p.interval); err != nil {
				return last, fmt.Errorf("%w: %w", types.ErrCancelled, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return last, fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}

		resp, err := p.reader.Status(ctx, txHash)
		if err != nil {
			if ctx.Err() != nil {
				return last, fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
			}
			if fatal(err) {
				metrics.StatusPolls.WithLabelValues("error").Inc()
				return last, err
			}

			failures++
			metrics.StatusPolls.WithLabelValues("error").Inc()
			p.log.Warn().Err(err).Int("attempt", attempt).Int("failures", failures).Msg("status read failed")
			if failures > p.retryBudget {
				return last, fmt.Errorf("%w: %d consecutive status reads failed: %w", types.ErrPollingFailed, failures, err)
			}
			continue
		}

		failures = 0
		last = resp.Status
		metrics.StatusPolls.WithLabelValues(string(last)).Inc()
		if p.observe != nil {
			p.observe(attempt, last)
		}
		p.log.Debug().Str("tx_hash", txHash).Int("attempt", attempt).Str("status", string(last)).Msg("order status")

		if last.IsTerminal() {
			return last, nil
		}
	}

	return last, fmt.Errorf("%w: no terminal status after %d attempts (last %s)", types.ErrPollingFailed, p.maxAttempts, last)
}

// fatal errors cannot be fixed by asking again.
func fatal(err error) bool {
	if errors.Is(err, types.ErrMissingCredential) {
		return true
	}
	var upstream *types.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
