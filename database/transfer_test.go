package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikebank/transfer-service/internal/apierror"
	"github.com/mikebank/transfer-service/model"
)

func newTestTransfer() *model.Transfer {
	now := time.Now().UTC()
	return &model.Transfer{
		TransferID:            "trf_123",
		IdempotencyKey:        "key-123",
		RequestHash:           "hash-123",
		SourceAccountRef:      "acc_src",
		DestinationAccountRef: "acc_dst",
		AmountMinorUnits:      5000,
		Currency:              "USD",
		Status:                model.StatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func transferRows(transfer *model.Transfer) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"transfer_id", "idempotency_key", "request_hash", "source_account_ref",
		"destination_account_ref", "amount", "currency", "status",
		"reservation_token", "failure_reason", "recovery_attempts", "created_at", "updated_at",
	}).AddRow(
		transfer.TransferID, transfer.IdempotencyKey, transfer.RequestHash,
		transfer.SourceAccountRef, transfer.DestinationAccountRef,
		transfer.AmountMinorUnits, transfer.Currency, transfer.Status,
		transfer.ReservationToken, transfer.FailureReason, transfer.RecoveryAttempts,
		transfer.CreatedAt, transfer.UpdatedAt,
	)
}

func TestBeginOrGetTransfer_Created(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	transfer := newTestTransfer()

	mock.ExpectExec("INSERT INTO transfers").
		WithArgs(transfer.TransferID, transfer.IdempotencyKey, transfer.RequestHash,
			transfer.SourceAccountRef, transfer.DestinationAccountRef, transfer.AmountMinorUnits,
			transfer.Currency, transfer.Status, transfer.CreatedAt, transfer.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, created, err := ds.BeginOrGetTransfer(context.Background(), transfer)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, transfer.TransferID, result.TransferID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginOrGetTransfer_ExistingKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	transfer := newTestTransfer()

	existing := newTestTransfer()
	existing.TransferID = "trf_existing"
	existing.Status = model.StatusCompleted

	mock.ExpectExec("INSERT INTO transfers").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT .* FROM transfers WHERE idempotency_key = \\$1").
		WithArgs(transfer.IdempotencyKey).
		WillReturnRows(transferRows(existing))

	result, created, err := ds.BeginOrGetTransfer(context.Background(), transfer)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "trf_existing", result.TransferID)
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTransfer_WithOutbox(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	transfer := newTestTransfer()
	transfer.Status = model.StatusCompleted

	record, err := model.NewOutboxRecord(transfer, model.EventTransferCompleted)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transfers").
		WithArgs(transfer.TransferID, model.StatusCompleted, sqlmock.AnyArg(), sqlmock.AnyArg(),
			transfer.RecoveryAttempts, sqlmock.AnyArg(), model.StatusReserved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(record.OutboxID, record.TransferID, record.EventType, []byte(record.Payload), record.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = ds.TransitionTransfer(context.Background(), transfer, model.StatusReserved, record)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTransfer_ClearsTokenOnTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	transfer := newTestTransfer()
	transfer.Status = model.StatusCompleted
	transfer.ReservationToken = "rsv_token_1"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transfers").
		WithArgs(transfer.TransferID, model.StatusCompleted, nil, nil,
			transfer.RecoveryAttempts, sqlmock.AnyArg(), model.StatusReserved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = ds.TransitionTransfer(context.Background(), transfer, model.StatusReserved)
	require.NoError(t, err)
	assert.Empty(t, transfer.ReservationToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTransfer_StaleStatusConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	transfer := newTestTransfer()
	transfer.Status = model.StatusReserved

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transfers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = ds.TransitionTransfer(context.Background(), transfer, model.StatusPending)
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTransfer_InvalidTransition(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	transfer := newTestTransfer()
	transfer.Status = model.StatusPending

	// COMPLETED is terminal, nothing may leave it
	err = ds.TransitionTransfer(context.Background(), transfer, model.StatusCompleted)
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))
}

func TestGetTransfer_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM transfers WHERE transfer_id = \\$1").
		WithArgs("trf_missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = ds.GetTransfer(context.Background(), "trf_missing")
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestGetStuckTransfers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	stuck := newTestTransfer()
	stuck.Status = model.StatusReserved

	mock.ExpectQuery("SELECT .* FROM transfers").
		WithArgs(model.StatusPending, model.StatusReserved, model.StatusCompensating, sqlmock.AnyArg(), 100).
		WillReturnRows(transferRows(stuck))

	transfers, err := ds.GetStuckTransfers(context.Background(), time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, model.StatusReserved, transfers[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecoveryAttempts_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE transfers SET recovery_attempts").
		WithArgs("trf_missing", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateRecoveryAttempts(context.Background(), "trf_missing", 2)
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}
