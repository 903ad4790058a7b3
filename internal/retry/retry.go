// Package retry bounds external calls with a per-attempt timeout and a fixed
// delay between a limited number of retries.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	Timeout    time.Duration
	Delay      time.Duration
	MaxRetries uint64
}

func DefaultPolicy() Policy {
	return Policy{Timeout: 5 * time.Second, Delay: 2 * time.Second, MaxRetries: 1}
}

// Notify is called before each retry with the 1-based number of the failed attempt.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs fn until it succeeds, the retry budget is spent, or ctx is done.
// Each attempt gets its own timeout derived from ctx.
func Do[T any](ctx context.Context, p Policy, notify Notify, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		return fn(callCtx)
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, p.MaxRetries)
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotifyWithData(op, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
}
