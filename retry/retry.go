package retry

import (
	"context"
	"time"
)

type options struct {
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
}

// Option configures Do
type Option func(*options)

// WithMaxRetries sets how many times to retry after the first attempt
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithBaseWait sets the wait before the first retry. Each subsequent retry
// doubles the wait, capped by WithMaxWait.
func WithBaseWait(d time.Duration) Option {
	return func(o *options) { o.baseWait = d }
}

// WithMaxWait caps the wait between retries
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// Do runs fn, retrying with exponential backoff while the returned error is
// recoverable. Non-recoverable errors are returned immediately. The last
// error is returned when retries are exhausted.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := options{
		maxRetries: 3,
		baseWait:   100 * time.Millisecond,
		maxWait:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	wait := o.baseWait
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			wait *= 2
			if wait > o.maxWait {
				wait = o.maxWait
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRecoverable(err) {
			return err
		}
	}
	return lastErr
}
