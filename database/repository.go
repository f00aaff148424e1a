package database

import (
	"context"
	"time"

	"github.com/mikebank/transfer-service/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	transfer   // Interface for transfer-related operations
	outbox     // Interface for outbox-related operations
	escalation // Interface for manual-review escalations
	analytics  // Interface for reporting queries over the transfers table
}

// transfer defines methods for handling transfers.
type transfer interface {
	// BeginOrGetTransfer is the atomic insert-if-absent admission primitive.
	// created is false when a transfer with the same idempotency key already
	// exists, in which case the existing record is returned.
	BeginOrGetTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, bool, error)
	GetTransfer(ctx context.Context, id string) (*model.Transfer, error)
	GetTransferByIdempotencyKey(ctx context.Context, key string) (*model.Transfer, error)
	// TransitionTransfer persists a state transition as a compare-and-set on
	// the previous status and appends the given outbox records in the same
	// database transaction. A stale fromStatus surfaces as a CONFLICT error.
	TransitionTransfer(ctx context.Context, transfer *model.Transfer, fromStatus string, records ...*model.OutboxRecord) error
	GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error)
	// GetStuckTransfers returns non-terminal transfers whose last update is
	// older than the threshold, for the recovery sweep.
	GetStuckTransfers(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Transfer, error)
	UpdateRecoveryAttempts(ctx context.Context, id string, attempts int) error
}

// outbox defines methods for handling undelivered event records.
type outbox interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]*model.OutboxRecord, error)
	MarkOutboxPublished(ctx context.Context, outboxID string) error
}

// escalation defines methods for the manual-review queue.
type escalation interface {
	RecordEscalation(ctx context.Context, transferID, reason string) error
	GetOpenEscalations(ctx context.Context, limit int) ([]model.Escalation, error)
}

// analytics defines read-only reporting queries over completed transfers.
type analytics interface {
	GetAccountTurnover(ctx context.Context, accountRef string, from, to time.Time) ([]model.AccountTurnover, error)
	GetTopTransfers(ctx context.Context, accountRef string, from time.Time, limit int) ([]model.Transfer, error)
}
