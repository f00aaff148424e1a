package transfer

import (
	"context"
	"time"

	"github.com/mikebank/transfer-service/model"
)

// GetAccountTurnover reports the completed outgoing volume of an account over
// a window, per currency.
func (s *Service) GetAccountTurnover(ctx context.Context, accountRef string, from, to time.Time) ([]model.AccountTurnover, error) {
	return s.datasource.GetAccountTurnover(ctx, accountRef, from, to)
}

// GetTopTransfers returns an account's largest completed outgoing transfers
// since the given time.
func (s *Service) GetTopTransfers(ctx context.Context, accountRef string, from time.Time, limit int) ([]model.Transfer, error) {
	return s.datasource.GetTopTransfers(ctx, accountRef, from, limit)
}
