package accounts

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedHTTPClient() *HTTPClient {
	client := NewHTTPClient("http://card-service:8083", "test-token", 2*time.Second)
	httpmock.ActivateNonDefault(client.client)
	return client
}

func TestReserveSuccess(t *testing.T) {
	client := newMockedHTTPClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://card-service:8083/accounts/acc_1/reserve",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "key-1", req.Header.Get("X-Idempotency-Key"))
			assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(200, map[string]string{"token": "rsv_123"})
		})

	token, err := client.Reserve(context.Background(), "acc_1", 5000, "USD", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "rsv_123", token)
}

func TestReserveInsufficientFunds(t *testing.T) {
	client := newMockedHTTPClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://card-service:8083/accounts/acc_1/reserve",
		httpmock.NewJsonResponderOrPanic(422, map[string]string{
			"code":    "insufficient_funds",
			"message": "balance too low",
		}))

	_, err := client.Reserve(context.Background(), "acc_1", 5000, "USD", "key-1")
	require.Error(t, err)
	assert.True(t, IsBusinessDenial(err))
	assert.Equal(t, "insufficient_funds", Reason(err))
}

func TestReserveServerErrorIsTransient(t *testing.T) {
	client := newMockedHTTPClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://card-service:8083/accounts/acc_1/reserve",
		httpmock.NewStringResponder(503, `{"message":"maintenance"}`))

	_, err := client.Reserve(context.Background(), "acc_1", 5000, "USD", "key-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCreditUnknownAccount(t *testing.T) {
	client := newMockedHTTPClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://card-service:8083/accounts/acc_missing/credit",
		httpmock.NewJsonResponderOrPanic(404, map[string]string{
			"code":    "account_not_found",
			"message": "no such account",
		}))

	err := client.Credit(context.Background(), "acc_missing", 100, "USD", "key-2")
	require.Error(t, err)
	assert.True(t, IsBusinessDenial(err))
	assert.Equal(t, "account_not_found", Reason(err))
}

func TestReleaseTimeoutIsTransient(t *testing.T) {
	client := newMockedHTTPClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://card-service:8083/reservations/release",
		httpmock.NewStringResponder(408, ""))

	err := client.Release(context.Background(), "rsv_123", "key-3")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCaptureSuccess(t *testing.T) {
	client := newMockedHTTPClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://card-service:8083/reservations/capture",
		httpmock.NewStringResponder(200, `{}`))

	assert.NoError(t, client.Capture(context.Background(), "rsv_123", "key-4"))
}
