package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type BreakerSettings struct {
	ConsecutiveFailures uint32
	Cooldown            time.Duration
}

// BreakerClient guards the account service with a circuit breaker. After the
// configured number of consecutive transport failures it opens and every call
// short-circuits with an Unavailable error for the cool-down window. Business
// denials are real answers from the service and do not count as failures.
type BreakerClient struct {
	next AccountClient
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerClient(next AccountClient, settings BreakerSettings) *BreakerClient {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "account-service",
		Timeout: settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsBusinessDenial(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("circuit breaker %s moved from %s to %s", name, from, to)
		},
	})

	return &BreakerClient{next: next, cb: cb}
}

func (b *BreakerClient) Reserve(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Reserve(ctx, accountRef, amount, currency, idempotencyKey)
	})
	if err != nil {
		return "", b.mapError(err)
	}
	return result.(string), nil
}

func (b *BreakerClient) Capture(ctx context.Context, token, idempotencyKey string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Capture(ctx, token, idempotencyKey)
	})
	return b.mapError(err)
}

func (b *BreakerClient) Release(ctx context.Context, token, idempotencyKey string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Release(ctx, token, idempotencyKey)
	})
	return b.mapError(err)
}

func (b *BreakerClient) Credit(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Credit(ctx, accountRef, amount, currency, idempotencyKey)
	})
	return b.mapError(err)
}

func (b *BreakerClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Unavailable("circuit_open", "account service circuit breaker is open")
	}
	return err
}
