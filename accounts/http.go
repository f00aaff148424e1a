package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient talks JSON to the account service. It does no retrying on its
// own; decorators handle that. Its only job besides transport is classifying
// responses into the error taxonomy.
type HTTPClient struct {
	baseURL     string
	bearerToken string
	client      *http.Client
}

func NewHTTPClient(baseURL, bearerToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		client:      &http.Client{Timeout: timeout},
	}
}

type reserveRequest struct {
	Amount   int64  `json:"amount_minor_units"`
	Currency string `json:"currency"`
}

type reserveResponse struct {
	Token string `json:"token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type creditRequest struct {
	Amount   int64  `json:"amount_minor_units"`
	Currency string `json:"currency"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPClient) Reserve(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) (string, error) {
	var resp reserveResponse
	url := fmt.Sprintf("%s/accounts/%s/reserve", h.baseURL, accountRef)
	err := h.post(ctx, url, reserveRequest{Amount: amount, Currency: currency}, idempotencyKey, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", Transient("empty_token", "account service returned no reservation token")
	}
	return resp.Token, nil
}

func (h *HTTPClient) Capture(ctx context.Context, token, idempotencyKey string) error {
	url := fmt.Sprintf("%s/reservations/capture", h.baseURL)
	return h.post(ctx, url, tokenRequest{Token: token}, idempotencyKey, nil)
}

func (h *HTTPClient) Release(ctx context.Context, token, idempotencyKey string) error {
	url := fmt.Sprintf("%s/reservations/release", h.baseURL)
	return h.post(ctx, url, tokenRequest{Token: token}, idempotencyKey, nil)
}

func (h *HTTPClient) Credit(ctx context.Context, accountRef string, amount int64, currency, idempotencyKey string) error {
	url := fmt.Sprintf("%s/accounts/%s/credit", h.baseURL, accountRef)
	return h.post(ctx, url, creditRequest{Amount: amount, Currency: currency}, idempotencyKey, nil)
}

func (h *HTTPClient) post(ctx context.Context, url string, payload interface{}, idempotencyKey string, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)
	if h.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.bearerToken)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// timeouts and connection errors are retryable
		return Transient("network_error", err.Error())
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Transient("bad_response", err.Error())
		}
		return nil
	}

	var errResp errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	return classifyStatus(resp.StatusCode, errResp)
}

// classifyStatus maps an HTTP failure to the error taxonomy. 4xx responses
// are definitive answers from the account service; everything else is worth
// retrying.
func classifyStatus(status int, errResp errorResponse) error {
	code := errResp.Code
	message := errResp.Message
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return Transient(code, message)
	case status >= 400 && status < 500:
		if code == "" {
			code = fmt.Sprintf("http_%d", status)
		}
		return BusinessDenial(code, message)
	default:
		if code == "" {
			code = fmt.Sprintf("http_%d", status)
		}
		return Transient(code, message)
	}
}
