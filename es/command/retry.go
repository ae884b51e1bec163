package command

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/getpup/pupkernel/es/store"
)

// RetryConfig bounds RetryOnConflict.
type RetryConfig struct {
	// MaxTries is the total number of attempts, including the first.
	MaxTries uint

	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the exponential wait between retries.
	MaxInterval time.Duration
}

// DefaultRetryConfig returns the default retry bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxTries:        5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// Retryable reports whether err is worth rerunning the whole command for.
func Retryable(err error) bool {
	return errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrStorageUnavailable)
}

// RetryOnConflict reruns run while it fails with a retryable error.
// Each attempt must reload the aggregate, so run is normally a closure around
// Execute. Any other error, including a handler rejection, stops immediately.
func RetryOnConflict(ctx context.Context, config RetryConfig, run func(ctx context.Context) (Response, error)) (Response, error) {
	b := backoff.NewExponentialBackOff()
	if config.InitialInterval > 0 {
		b.InitialInterval = config.InitialInterval
	}
	if config.MaxInterval > 0 {
		b.MaxInterval = config.MaxInterval
	}

	tries := config.MaxTries
	if tries == 0 {
		tries = DefaultRetryConfig().MaxTries
	}

	return backoff.Retry(ctx, func() (Response, error) {
		resp, err := run(ctx)
		if err != nil && !Retryable(err) {
			return Response{}, backoff.Permanent(err)
		}
		return resp, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}
