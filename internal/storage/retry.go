package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retries of a single backend call.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when the manager is built without one.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:        3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// retry runs op until it succeeds, attempts are exhausted or ctx ends.
// ErrBlobNotFound and invalid keys are never retried.
func retry(ctx context.Context, p RetryPolicy, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if p.Attempts > 0 {
		b = backoff.WithMaxRetries(exp, uint64(p.Attempts-1))
	}
	b = backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrBlobNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
