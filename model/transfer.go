package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending      = "PENDING"
	StatusReserved     = "RESERVED"
	StatusCompleted    = "COMPLETED"
	StatusFailed       = "FAILED"
	StatusCompensating = "COMPENSATING"
	StatusCompensated  = "COMPENSATED"
)

// Transfer represents one funds movement intent between two external
// accounts. It is created once on admission and mutated only by the
// orchestrator until it reaches a terminal status.
type Transfer struct {
	ID                    int64                  `json:"-"`
	TransferID            string                 `json:"id"`
	IdempotencyKey        string                 `json:"idempotency_key"`
	RequestHash           string                 `json:"-"`
	SourceAccountRef      string                 `json:"source_account_ref"`
	DestinationAccountRef string                 `json:"destination_account_ref"`
	AmountMinorUnits      int64                  `json:"amount_minor_units"`
	Currency              string                 `json:"currency"`
	Status                string                 `json:"status"`
	ReservationToken      string                 `json:"-"`
	FailureReason         string                 `json:"failure_reason,omitempty"`
	RecoveryAttempts      int                    `json:"-"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	MetaData              map[string]interface{} `json:"meta_data,omitempty"`
}

// validTransitions encodes the saga state machine. A terminal status has no
// outgoing transitions and nothing ever moves back to PENDING.
var validTransitions = map[string][]string{
	StatusPending:      {StatusReserved, StatusFailed},
	StatusReserved:     {StatusCompleted, StatusCompensating, StatusFailed, StatusCompensated},
	StatusCompensating: {StatusCompensated, StatusFailed},
}

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCompensated:
		return true
	}
	return false
}

func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (transfer *Transfer) IsTerminal() bool {
	return IsTerminalStatus(transfer.Status)
}

func (transfer *Transfer) ToJSON() ([]byte, error) {
	return json.Marshal(transfer)
}

// HashRequest derives a stable fingerprint of the transfer request body. It is
// stored next to the idempotency key so a key reuse with a different body can
// be rejected instead of silently replayed.
func (transfer *Transfer) HashRequest() string {
	payload := fmt.Sprintf("TRANSFER|%s|%s|%d|%s",
		transfer.SourceAccountRef, transfer.DestinationAccountRef, transfer.AmountMinorUnits, transfer.Currency)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// GenerateUUIDWithSuffix creates a prefixed identifier, e.g. "trf_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}
