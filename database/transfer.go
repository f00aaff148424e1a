package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mikebank/transfer-service/internal/apierror"
	"github.com/mikebank/transfer-service/model"
)

const pqUniqueViolation = "23505"

const transferColumns = `transfer_id, idempotency_key, request_hash, source_account_ref, destination_account_ref, amount, currency, status, reservation_token, failure_reason, recovery_attempts, created_at, updated_at`

func (d Datasource) BeginOrGetTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, bool, error) {
	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO transfers (transfer_id, idempotency_key, request_hash, source_account_ref, destination_account_ref, amount, currency, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		transfer.TransferID, transfer.IdempotencyKey, transfer.RequestHash, transfer.SourceAccountRef,
		transfer.DestinationAccountRef, transfer.AmountMinorUnits, transfer.Currency, transfer.Status,
		transfer.CreatedAt, transfer.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			// lost the admission race, the winner's record is authoritative
			existing, getErr := d.GetTransferByIdempotencyKey(ctx, transfer.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create transfer", err)
	}
	return transfer, true, nil
}

func (d Datasource) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	row := d.Conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transfers WHERE transfer_id = $1`, transferColumns), id)

	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transfer with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfer", err)
	}
	return transfer, nil
}

func (d Datasource) GetTransferByIdempotencyKey(ctx context.Context, key string) (*model.Transfer, error) {
	row := d.Conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transfers WHERE idempotency_key = $1`, transferColumns), key)

	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transfer with idempotency key '%s' not found", key), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfer", err)
	}
	return transfer, nil
}

// TransitionTransfer applies a status transition with a compare-and-set on the
// previous status, and appends the outbox records in the same database
// transaction. Write-ahead-of-publish: the transition is not committed unless
// its event trail is.
func (d Datasource) TransitionTransfer(ctx context.Context, transfer *model.Transfer, fromStatus string, records ...*model.OutboxRecord) error {
	if !model.CanTransition(fromStatus, transfer.Status) {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Invalid transition from %s to %s", fromStatus, transfer.Status), nil)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// the hold no longer exists once the transfer is terminal
	if model.IsTerminalStatus(transfer.Status) {
		transfer.ReservationToken = ""
	}

	transfer.UpdatedAt = time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE transfers
		 SET status = $2, reservation_token = $3, failure_reason = $4, recovery_attempts = $5, updated_at = $6
		 WHERE transfer_id = $1 AND status = $7`,
		transfer.TransferID, transfer.Status, nullString(transfer.ReservationToken),
		nullString(transfer.FailureReason), transfer.RecoveryAttempts, transfer.UpdatedAt, fromStatus,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transfer status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		// another writer advanced the transfer first
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Transfer '%s' is no longer in status %s", transfer.TransferID, fromStatus), nil)
	}

	for _, record := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox (outbox_id, transfer_id, event_type, payload, created_at)
			 VALUES ($1,$2,$3,$4,$5)`,
			record.OutboxID, record.TransferID, record.EventType, []byte(record.Payload), record.CreatedAt,
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append outbox record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transition", err)
	}
	return nil
}

func (d Datasource) GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error) {
	rows, err := d.Conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transfers ORDER BY created_at DESC LIMIT $1 OFFSET $2`, transferColumns),
		limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfers", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transfer data", err)
		}
		transfers = append(transfers, *transfer)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transfers", err)
	}
	return transfers, nil
}

func (d Datasource) GetStuckTransfers(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Transfer, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := d.Conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transfers
		 WHERE status IN ($1, $2, $3) AND updated_at < $4
		 ORDER BY updated_at ASC LIMIT $5`, transferColumns),
		model.StatusPending, model.StatusReserved, model.StatusCompensating, cutoff, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck transfers", err)
	}
	defer rows.Close()

	var transfers []*model.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transfer data", err)
		}
		transfers = append(transfers, transfer)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over stuck transfers", err)
	}
	return transfers, nil
}

func (d Datasource) UpdateRecoveryAttempts(ctx context.Context, id string, attempts int) error {
	result, err := d.Conn.ExecContext(ctx,
		`UPDATE transfers SET recovery_attempts = $2, updated_at = $3 WHERE transfer_id = $1`,
		id, attempts, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update recovery attempts", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transfer with ID '%s' not found", id), nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (*model.Transfer, error) {
	transfer := &model.Transfer{}
	var reservationToken, failureReason sql.NullString
	err := row.Scan(
		&transfer.TransferID, &transfer.IdempotencyKey, &transfer.RequestHash,
		&transfer.SourceAccountRef, &transfer.DestinationAccountRef,
		&transfer.AmountMinorUnits, &transfer.Currency, &transfer.Status,
		&reservationToken, &failureReason, &transfer.RecoveryAttempts,
		&transfer.CreatedAt, &transfer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	transfer.ReservationToken = reservationToken.String
	transfer.FailureReason = failureReason.String
	return transfer, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
