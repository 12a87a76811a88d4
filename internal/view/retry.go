package view

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a transient view failure is retried.
// The wait starts at InitialBackoff and doubles up to MaxBackoff.
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy mirrors a hidden container becoming visible within a
// second or two.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:       5,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// Do runs op until it succeeds, fails with a non-transient error, the
// attempts are used up or ctx is done. onRetry, if set, is called before
// each wait. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, op func() error, onRetry func(attempt int, err error, wait time.Duration)) (int, error) {
	attempts := max(p.Attempts, 1)
	wait := p.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil || !IsTransient(err) || attempt >= attempts {
			return attempt, err
		}

		if onRetry != nil {
			onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}

		wait *= 2
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}
