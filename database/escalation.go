package database

import (
	"context"
	"time"

	"github.com/mikebank/transfer-service/internal/apierror"
	"github.com/mikebank/transfer-service/model"
)

func (d Datasource) RecordEscalation(ctx context.Context, transferID, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO escalations (escalation_id, transfer_id, reason, created_at)
		VALUES ($1,$2,$3,$4)
	`, model.GenerateUUIDWithSuffix("esc"), transferID, reason, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record escalation", err)
	}
	return nil
}

func (d Datasource) GetOpenEscalations(ctx context.Context, limit int) ([]model.Escalation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT escalation_id, transfer_id, reason, created_at
		FROM escalations
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve escalations", err)
	}
	defer rows.Close()

	var escalations []model.Escalation
	for rows.Next() {
		escalation := model.Escalation{}
		err = rows.Scan(&escalation.EscalationID, &escalation.TransferID, &escalation.Reason, &escalation.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan escalation", err)
		}
		escalations = append(escalations, escalation)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over escalations", err)
	}
	return escalations, nil
}
