package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mikebank/transfer-service/internal/apierror"
	"github.com/mikebank/transfer-service/model"
)

// GetAccountTurnover aggregates completed outgoing transfers for a source
// account over [from, to], grouped by currency.
func (d Datasource) GetAccountTurnover(ctx context.Context, accountRef string, from, to time.Time) ([]model.AccountTurnover, error) {
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT source_account_ref, currency, COUNT(*), COALESCE(SUM(amount), 0)
		 FROM transfers
		 WHERE source_account_ref = $1 AND status = $2 AND created_at BETWEEN $3 AND $4
		 GROUP BY source_account_ref, currency`,
		accountRef, model.StatusCompleted, from, to)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute account turnover", err)
	}
	defer rows.Close()

	var turnovers []model.AccountTurnover
	for rows.Next() {
		var turnover model.AccountTurnover
		if err := rows.Scan(&turnover.AccountRef, &turnover.Currency,
			&turnover.OperationsCount, &turnover.TurnoverMinorUnits); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan turnover data", err)
		}
		turnovers = append(turnovers, turnover)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over turnover data", err)
	}
	return turnovers, nil
}

// GetTopTransfers returns the largest completed outgoing transfers for a
// source account since the given time, ordered by amount descending.
func (d Datasource) GetTopTransfers(ctx context.Context, accountRef string, from time.Time, limit int) ([]model.Transfer, error) {
	rows, err := d.Conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transfers
		 WHERE source_account_ref = $1 AND status = $2 AND created_at >= $3
		 ORDER BY amount DESC LIMIT $4`, transferColumns),
		accountRef, model.StatusCompleted, from, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve top transfers", err)
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
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over top transfers", err)
	}
	return transfers, nil
}
