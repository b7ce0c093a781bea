package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// Policy is an explicit, reusable retry policy applied at network call
// sites: a bounded attempt count with exponential backoff between attempts,
// retrying only errors the predicate accepts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to Transient.
	Retryable func(error) bool
	// Sleep allows tests to observe the backoff schedule. When unset the
	// wait is a timer that also honors context cancellation.
	Sleep func(time.Duration)
}

// Default is the fetch policy: 3 attempts, 2s base backoff capped at 10s,
// retrying transient network errors only.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs op, retrying per the policy. It returns the last error once
// attempts are exhausted or as soon as a non-retryable error occurs.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if waitErr := p.wait(ctx, p.delay(attempt-1)); waitErr != nil {
				return waitErr
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = op(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// wait blocks for the backoff delay, returning early when the context is
// cancelled.
func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		p.Sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// delay computes the backoff before attempt n+1 (n starting at 0):
// BaseDelay doubled per retry, capped at MaxDelay.
func (p Policy) delay(n int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Transient reports whether err looks like a recoverable network or
// connection failure. Parse errors and HTTP client errors are not
// transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var te interface{ Temporary() bool }
	if errors.As(err, &te) && te.Temporary() {
		return true
	}
	return false
}
