package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mikebank/transfer-service/model"
)

// CreateTransfer is the request body for submitting a transfer.
type CreateTransfer struct {
	SourceAccountRef      string                 `json:"source_account_ref"`
	DestinationAccountRef string                 `json:"destination_account_ref"`
	AmountMinorUnits      int64                  `json:"amount_minor_units"`
	Currency              string                 `json:"currency"`
	IdempotencyKey        string                 `json:"idempotency_key"`
	MetaData              map[string]interface{} `json:"meta_data"`
}

func (c *CreateTransfer) ValidateCreateTransfer() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SourceAccountRef, validation.Required),
		validation.Field(&c.DestinationAccountRef, validation.Required,
			validation.By(func(value interface{}) error {
				if c.DestinationAccountRef == c.SourceAccountRef {
					return validation.NewError("validation_same_account", "source and destination accounts must differ")
				}
				return nil
			})),
		validation.Field(&c.AmountMinorUnits, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.Currency, validation.Required, validation.Length(3, 3)),
	)
}

func (c *CreateTransfer) ToTransfer() *model.Transfer {
	return &model.Transfer{
		IdempotencyKey:        c.IdempotencyKey,
		SourceAccountRef:      c.SourceAccountRef,
		DestinationAccountRef: c.DestinationAccountRef,
		AmountMinorUnits:      c.AmountMinorUnits,
		Currency:              c.Currency,
		MetaData:              c.MetaData,
	}
}

// RecoverTransfersRequest is the body for the manual recovery trigger. The
// threshold is how long a transfer must have been idle to count as stuck.
type RecoverTransfersRequest struct {
	ThresholdMinutes int `json:"threshold_minutes"`
}

func (r *RecoverTransfersRequest) ValidateRecoverTransfersRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ThresholdMinutes, validation.Min(0)),
	)
}
