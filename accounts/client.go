package accounts

import (
	"context"
	"time"

	"github.com/mikebank/transfer-service/config"
)

// AccountClient is the synchronous interface to the remote account service.
// Every call carries the owning transfer's idempotency key so the remote side
// can deduplicate retried calls; repeating any of these operations with the
// same key has no additional effect.
type AccountClient interface {
	// Reserve places a hold on funds and returns an opaque reservation token.
	Reserve(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) (string, error)
	// Capture converts a reservation into a final debit.
	Capture(ctx context.Context, token, idempotencyKey string) error
	// Release frees a reservation without debiting.
	Release(ctx context.Context, token, idempotencyKey string) error
	// Credit adds funds to the destination account.
	Credit(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) error
}

// NewClient builds the production client stack: HTTP transport, wrapped by a
// circuit breaker, wrapped by a bounded retry decorator. The breaker sits
// inside the retry loop so every attempt counts toward its failure threshold
// and an open breaker short-circuits remaining attempts.
func NewClient(conf *config.AccountServiceConfig) AccountClient {
	httpClient := NewHTTPClient(conf.Url, conf.BearerToken, time.Duration(conf.TimeoutSec)*time.Second)
	breaker := NewBreakerClient(httpClient, BreakerSettings{
		ConsecutiveFailures: uint32(conf.BreakerThreshold),
		Cooldown:            time.Duration(conf.BreakerCooldownSec) * time.Second,
	})
	return NewRetryingClient(breaker, RetrySettings{
		MaxRetries:      uint64(conf.MaxRetries),
		InitialInterval: time.Duration(conf.RetryInitialDelayMsec) * time.Millisecond,
	})
}
