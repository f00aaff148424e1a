package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikebank/transfer-service/model"
)

func TestGetAccountTurnover(t *testing.T) {
	service := &stubService{turnovers: []model.AccountTurnover{
		{AccountRef: "acc_src", Currency: "USD", OperationsCount: 4, TurnoverMinorUnits: 23500},
	}}
	router := newTestAPI(t, service)

	req := httptest.NewRequest(http.MethodGet,
		"/analytics/accounts/acc_src/turnover?from=2026-01-01T00:00:00Z&to=2026-06-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []model.AccountTurnover
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, int64(23500), resp[0].TurnoverMinorUnits)
}

func TestGetAccountTurnover_BadPeriod(t *testing.T) {
	service := &stubService{}
	router := newTestAPI(t, service)

	req := httptest.NewRequest(http.MethodGet,
		"/analytics/accounts/acc_src/turnover?from=yesterday&to=2026-06-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTopTransfers(t *testing.T) {
	service := &stubService{top: []model.Transfer{
		{TransferID: "trf_big", AmountMinorUnits: 90000, Status: model.StatusCompleted},
		{TransferID: "trf_mid", AmountMinorUnits: 12000, Status: model.StatusCompleted},
		{TransferID: "trf_small", AmountMinorUnits: 800, Status: model.StatusCompleted},
	}}
	router := newTestAPI(t, service)

	req := httptest.NewRequest(http.MethodGet,
		"/analytics/accounts/acc_src/top-transfers?from=2026-01-01T00:00:00Z&limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []model.Transfer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "trf_big", resp[0].TransferID)
}

func TestGetTopTransfers_BadLimit(t *testing.T) {
	service := &stubService{}
	router := newTestAPI(t, service)

	req := httptest.NewRequest(http.MethodGet, "/analytics/accounts/acc_src/top-transfers?limit=0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
