package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"staffpresence/internal/apperr"
)

// Policy bounds how often a conflicting read-modify-write is re-run.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries a conflict twice (three attempts in total).
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     200 * time.Millisecond,
}

// OnConflict runs op until it succeeds, fails with a non-conflict error, or
// the attempts are exhausted. Only apperr.CodeConflict is retried; storage
// outages go straight back to the caller. notify, when set, is called before
// each retry.
func OnConflict[T any](ctx context.Context, p Policy, notify func(error), op func() (T, error)) (T, error) {
	if p.MaxAttempts == 0 {
		p = DefaultPolicy
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && apperr.CodeOf(err) != apperr.CodeConflict {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if notify != nil {
				notify(err)
			}
		}),
	)
}
