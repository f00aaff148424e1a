package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mikebank/transfer-service/internal/apierror"
	"github.com/mikebank/transfer-service/model"
)

// GetUnpublishedOutbox returns undelivered records in commit order. Ordering
// by (created_at, id) keeps events for the same transfer in the order their
// transitions were committed.
func (d Datasource) GetUnpublishedOutbox(ctx context.Context, limit int) ([]*model.OutboxRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT outbox_id, transfer_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve outbox records", err)
	}
	defer rows.Close()

	var records []*model.OutboxRecord
	for rows.Next() {
		record := &model.OutboxRecord{}
		err = rows.Scan(&record.OutboxID, &record.TransferID, &record.EventType, &record.Payload, &record.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan outbox record", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over outbox records", err)
	}
	return records, nil
}

func (d Datasource) MarkOutboxPublished(ctx context.Context, outboxID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE outbox
		SET published_at = $2
		WHERE outbox_id = $1 AND published_at IS NULL
	`, outboxID, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark outbox record published", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Outbox record '%s' not found or already published", outboxID), nil)
	}
	return nil
}
