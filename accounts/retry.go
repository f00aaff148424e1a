package accounts

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

type RetrySettings struct {
	MaxRetries      uint64
	InitialInterval time.Duration
}

// RetryingClient retries transient failures with bounded exponential backoff.
// Business denials and unavailability pass through untouched. When the retry
// budget runs out the last transient error is surfaced as Unavailable, which
// is what the orchestrator keys terminal failure decisions on.
type RetryingClient struct {
	next     AccountClient
	settings RetrySettings
}

func NewRetryingClient(next AccountClient, settings RetrySettings) *RetryingClient {
	if settings.MaxRetries == 0 {
		settings.MaxRetries = 3
	}
	if settings.InitialInterval == 0 {
		settings.InitialInterval = 100 * time.Millisecond
	}
	return &RetryingClient{next: next, settings: settings}
}

func (r *RetryingClient) Reserve(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) (string, error) {
	var token string
	err := r.do(ctx, "reserve", func() error {
		var err error
		token, err = r.next.Reserve(ctx, accountRef, amount, currency, idempotencyKey)
		return err
	})
	return token, err
}

func (r *RetryingClient) Capture(ctx context.Context, token, idempotencyKey string) error {
	return r.do(ctx, "capture", func() error {
		return r.next.Capture(ctx, token, idempotencyKey)
	})
}

func (r *RetryingClient) Release(ctx context.Context, token, idempotencyKey string) error {
	return r.do(ctx, "release", func() error {
		return r.next.Release(ctx, token, idempotencyKey)
	})
}

func (r *RetryingClient) Credit(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) error {
	return r.do(ctx, "credit", func() error {
		return r.next.Credit(ctx, accountRef, amount, currency, idempotencyKey)
	})
}

func (r *RetryingClient) do(ctx context.Context, operation string, call func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.settings.InitialInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, r.settings.MaxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := call()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			logrus.Warnf("account %s attempt %d failed, will retry: %v", operation, attempt, err)
			return err
		}
		// denial or open breaker, retrying cannot help
		return backoff.Permanent(err)
	}, policy)

	if err != nil && IsTransient(err) {
		return Unavailable("retries_exhausted", err.Error())
	}
	return err
}
