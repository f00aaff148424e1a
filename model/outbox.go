package model

import (
	"encoding/json"
	"time"
)

const (
	EventTransferCompleted   = "transfer.completed"
	EventTransferFailed      = "transfer.failed"
	EventTransferCompensated = "transfer.compensated"
)

// OutboxRecord is an event that has been committed alongside the transfer
// mutation that produced it but is not yet guaranteed delivered to the bus.
// PublishedAt stays nil until the bus has acknowledged the event.
type OutboxRecord struct {
	ID          int64           `json:"-"`
	OutboxID    string          `json:"outbox_id"`
	TransferID  string          `json:"transfer_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// TransferEvent is the wire payload emitted to the bus. Consumers dedupe by
// EventID since delivery is at-least-once.
type TransferEvent struct {
	EventID       string    `json:"event_id"`
	TransferID    string    `json:"transfer_id"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewOutboxRecord builds the outbox row for an externally observable transfer
// transition. It must be appended in the same database transaction as the
// status change it describes.
func NewOutboxRecord(transfer *Transfer, eventType string) (*OutboxRecord, error) {
	event := TransferEvent{
		EventID:       GenerateUUIDWithSuffix("evt"),
		TransferID:    transfer.TransferID,
		Status:        transfer.Status,
		FailureReason: transfer.FailureReason,
		Timestamp:     time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &OutboxRecord{
		OutboxID:   GenerateUUIDWithSuffix("obx"),
		TransferID: transfer.TransferID,
		EventType:  eventType,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Escalation is a manual-review entry created when compensation cannot make
// progress on its own.
type Escalation struct {
	ID           int64      `json:"-"`
	EscalationID string     `json:"escalation_id"`
	TransferID   string     `json:"transfer_id"`
	Reason       string     `json:"reason"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
