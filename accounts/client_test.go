package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns a preset sequence of errors, then succeeds. It
// records every call so tests can assert attempt counts and key propagation.
type scriptedClient struct {
	failures []error
	calls    int
	keys     []string
}

func (s *scriptedClient) next(idempotencyKey string) error {
	s.calls++
	s.keys = append(s.keys, idempotencyKey)
	if s.calls <= len(s.failures) {
		return s.failures[s.calls-1]
	}
	return nil
}

func (s *scriptedClient) Reserve(_ context.Context, _ string, _ int64, _, idempotencyKey string) (string, error) {
	if err := s.next(idempotencyKey); err != nil {
		return "", err
	}
	return "rsv_ok", nil
}

func (s *scriptedClient) Capture(_ context.Context, _, idempotencyKey string) error {
	return s.next(idempotencyKey)
}

func (s *scriptedClient) Release(_ context.Context, _, idempotencyKey string) error {
	return s.next(idempotencyKey)
}

func (s *scriptedClient) Credit(_ context.Context, _ string, _ int64, _, idempotencyKey string) error {
	return s.next(idempotencyKey)
}

func fastRetrySettings(maxRetries uint64) RetrySettings {
	return RetrySettings{MaxRetries: maxRetries, InitialInterval: time.Millisecond}
}

func TestRetryingClientRetriesTransient(t *testing.T) {
	scripted := &scriptedClient{failures: []error{
		Transient("timeout", "deadline exceeded"),
		Transient("timeout", "deadline exceeded"),
	}}
	client := NewRetryingClient(scripted, fastRetrySettings(3))

	err := client.Credit(context.Background(), "acc_2", 5000, "USD", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 3, scripted.calls)
	// every attempt must carry the same idempotency key
	for _, key := range scripted.keys {
		assert.Equal(t, "key-1", key)
	}
}

func TestRetryingClientDoesNotRetryDenial(t *testing.T) {
	scripted := &scriptedClient{failures: []error{
		BusinessDenial("insufficient_funds", "balance too low"),
	}}
	client := NewRetryingClient(scripted, fastRetrySettings(3))

	_, err := client.Reserve(context.Background(), "acc_1", 5000, "USD", "key-2")
	require.Error(t, err)
	assert.True(t, IsBusinessDenial(err))
	assert.Equal(t, 1, scripted.calls)
}

func TestRetryingClientExhaustionBecomesUnavailable(t *testing.T) {
	scripted := &scriptedClient{failures: []error{
		Transient("timeout", "1"),
		Transient("timeout", "2"),
		Transient("timeout", "3"),
	}}
	client := NewRetryingClient(scripted, fastRetrySettings(2))

	err := client.Release(context.Background(), "rsv_1", "key-3")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 3, scripted.calls) // initial attempt + 2 retries
}

func TestRetryingClientStopsWhenBreakerOpens(t *testing.T) {
	scripted := &scriptedClient{failures: []error{
		Unavailable("circuit_open", "breaker open"),
	}}
	client := NewRetryingClient(scripted, fastRetrySettings(5))

	err := client.Capture(context.Background(), "rsv_1", "key-4")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 1, scripted.calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	scripted := &scriptedClient{failures: []error{
		Transient("timeout", "1"),
		Transient("timeout", "2"),
		Transient("timeout", "3"),
	}}
	client := NewBreakerClient(scripted, BreakerSettings{ConsecutiveFailures: 2, Cooldown: time.Minute})

	ctx := context.Background()
	err := client.Credit(ctx, "acc_2", 100, "USD", "key-5")
	assert.True(t, IsTransient(err))
	err = client.Credit(ctx, "acc_2", 100, "USD", "key-5")
	assert.True(t, IsTransient(err))

	// threshold reached, further calls short-circuit without touching the service
	err = client.Credit(ctx, "acc_2", 100, "USD", "key-5")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 2, scripted.calls)
}

func TestBreakerIgnoresBusinessDenials(t *testing.T) {
	scripted := &scriptedClient{failures: []error{
		BusinessDenial("insufficient_funds", "1"),
		BusinessDenial("insufficient_funds", "2"),
		BusinessDenial("insufficient_funds", "3"),
	}}
	client := NewBreakerClient(scripted, BreakerSettings{ConsecutiveFailures: 2, Cooldown: time.Minute})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := client.Credit(ctx, "acc_2", 100, "USD", "key-6")
		require.Error(t, err)
		assert.True(t, IsBusinessDenial(err))
	}
	// denials never trip the breaker
	assert.Equal(t, 3, scripted.calls)
}

func TestClassOfPlainError(t *testing.T) {
	assert.Equal(t, ClassTransient, ClassOf(context.DeadlineExceeded))
	assert.Equal(t, "", Reason(nil))
}
