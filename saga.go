package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mikebank/transfer-service/accounts"
	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/internal/apierror"
	redlock "github.com/mikebank/transfer-service/internal/lock"
	"github.com/mikebank/transfer-service/internal/notification"
	"github.com/mikebank/transfer-service/model"
)

// SubmitTransfer admits a transfer request. Admission is idempotent: the
// unique index on the idempotency key makes exactly one insert win, and every
// other submission with the same key gets the winner's record back. A key
// reused with a different request body is rejected outright.
func (s *Service) SubmitTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, bool, error) {
	if transfer.AmountMinorUnits <= 0 {
		return nil, false, apierror.NewAPIError(apierror.ErrInvalidInput,
			"Transfer amount must be a positive number of minor units", nil)
	}
	if transfer.SourceAccountRef == transfer.DestinationAccountRef {
		return nil, false, apierror.NewAPIError(apierror.ErrInvalidInput,
			"Source and destination accounts must differ", nil)
	}

	transfer.TransferID = model.GenerateUUIDWithSuffix("trf")
	transfer.Status = model.StatusPending
	transfer.RequestHash = transfer.HashRequest()
	transfer.CreatedAt = time.Now().UTC()
	transfer.UpdatedAt = transfer.CreatedAt
	if transfer.IdempotencyKey == "" {
		// no client key supplied, derive one from the request body so an
		// identical retry still deduplicates
		transfer.IdempotencyKey = fmt.Sprintf("derived_%s", transfer.RequestHash)
	}

	existing, created, err := s.datasource.BeginOrGetTransfer(ctx, transfer)
	if err != nil {
		return nil, false, err
	}

	if !created {
		if existing.RequestHash != transfer.RequestHash {
			return nil, false, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Idempotency key '%s' was already used with a different request", transfer.IdempotencyKey), nil)
		}
		return existing, false, nil
	}

	// the transfer is durable at this point; a lost enqueue is picked up by
	// the recovery sweep
	if err := s.queue.EnqueueTransfer(ctx, existing); err != nil {
		logrus.Errorf("failed to enqueue transfer %s, recovery sweep will pick it up: %v", existing.TransferID, err)
	}
	return existing, true, nil
}

// GetTransfer returns a transfer by its ID.
func (s *Service) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	return s.datasource.GetTransfer(ctx, id)
}

// GetAllTransfers returns transfers ordered by creation time, newest first.
func (s *Service) GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error) {
	return s.datasource.GetAllTransfers(ctx, limit, offset)
}

// DriveTransfer advances a transfer through the saga until it reaches a
// terminal status or a step fails. Each step persists its outcome before the
// next remote call, so a crash mid-saga resumes from the last committed
// status. The per-key lock guarantees a single driver at a time; the recovery
// sweep goes through the same lock and can never race a live worker.
func (s *Service) DriveTransfer(ctx context.Context, transferID string) error {
	transfer, err := s.datasource.GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer.IsTerminal() {
		return nil
	}

	locker := redlock.NewLocker(s.redis, fmt.Sprintf("lock:transfer:%s", transfer.IdempotencyKey), model.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, time.Minute, 10*time.Second); err != nil {
		return err
	}
	defer func() {
		if unlockErr := locker.Unlock(context.Background()); unlockErr != nil {
			logrus.Warnf("failed to release lock for transfer %s: %v", transferID, unlockErr)
		}
	}()

	// re-read under the lock, another driver may have advanced it
	transfer, err = s.datasource.GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}

	for !transfer.IsTerminal() {
		switch transfer.Status {
		case model.StatusPending:
			err = s.reserveStep(ctx, transfer)
		case model.StatusReserved:
			err = s.creditStep(ctx, transfer)
		case model.StatusCompensating:
			err = s.releaseStep(ctx, transfer)
		default:
			return apierror.NewAPIError(apierror.ErrInternalServer,
				fmt.Sprintf("Transfer '%s' is in unknown status %s", transfer.TransferID, transfer.Status), nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// reserveStep places a hold on the source account. A denial or an exhausted
// client (breaker open, retries spent) is a clean terminal failure since no
// funds have moved; anything else leaves the transfer in PENDING for a later
// re-drive.
func (s *Service) reserveStep(ctx context.Context, transfer *model.Transfer) error {
	token, err := s.accounts.Reserve(ctx, transfer.SourceAccountRef, transfer.AmountMinorUnits,
		transfer.Currency, operationKey(transfer, "reserve"))
	if err == nil {
		transfer.ReservationToken = token
		transfer.Status = model.StatusReserved
		return s.datasource.TransitionTransfer(ctx, transfer, model.StatusPending)
	}

	if accounts.IsBusinessDenial(err) || accounts.IsUnavailable(err) {
		transfer.Status = model.StatusFailed
		transfer.FailureReason = accounts.Reason(err)
		record, recordErr := model.NewOutboxRecord(transfer, model.EventTransferFailed)
		if recordErr != nil {
			return recordErr
		}
		logrus.Infof("transfer %s denied at reserve: %s", transfer.TransferID, transfer.FailureReason)
		return s.datasource.TransitionTransfer(ctx, transfer, model.StatusPending, record)
	}

	return errors.Wrapf(err, "reserve failed for transfer %s", transfer.TransferID)
}

// creditStep moves the held funds to the destination. A denial or an
// exhausted client here means the source hold must be undone, so the transfer
// moves to COMPENSATING instead of failing directly.
func (s *Service) creditStep(ctx context.Context, transfer *model.Transfer) error {
	err := s.accounts.Credit(ctx, transfer.DestinationAccountRef, transfer.AmountMinorUnits,
		transfer.Currency, operationKey(transfer, "credit"))
	if err == nil {
		if captureErr := s.accounts.Capture(ctx, transfer.ReservationToken, operationKey(transfer, "capture")); captureErr != nil {
			// stays RESERVED; the idempotency keys make the repeated
			// credit and capture on the next drive safe
			return errors.Wrapf(captureErr, "capture failed for transfer %s", transfer.TransferID)
		}
		transfer.Status = model.StatusCompleted
		record, recordErr := model.NewOutboxRecord(transfer, model.EventTransferCompleted)
		if recordErr != nil {
			return recordErr
		}
		logrus.Infof("transfer %s completed", transfer.TransferID)
		return s.datasource.TransitionTransfer(ctx, transfer, model.StatusReserved, record)
	}

	if accounts.IsBusinessDenial(err) || accounts.IsUnavailable(err) {
		transfer.Status = model.StatusCompensating
		transfer.FailureReason = accounts.Reason(err)
		logrus.Infof("transfer %s denied at credit, compensating: %s", transfer.TransferID, transfer.FailureReason)
		return s.datasource.TransitionTransfer(ctx, transfer, model.StatusReserved)
	}

	return errors.Wrapf(err, "credit failed for transfer %s", transfer.TransferID)
}

// releaseStep undoes the source hold. Release attempts are bounded; past the
// bound the transfer is escalated for manual review rather than retried
// forever, because an unreleasable hold means real customer money is stuck.
func (s *Service) releaseStep(ctx context.Context, transfer *model.Transfer) error {
	err := s.accounts.Release(ctx, transfer.ReservationToken, operationKey(transfer, "release"))
	if err == nil {
		transfer.Status = model.StatusCompensated
		record, recordErr := model.NewOutboxRecord(transfer, model.EventTransferCompensated)
		if recordErr != nil {
			return recordErr
		}
		logrus.Infof("transfer %s compensated: %s", transfer.TransferID, transfer.FailureReason)
		return s.datasource.TransitionTransfer(ctx, transfer, model.StatusCompensating, record)
	}

	cfg, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}

	attempts := transfer.RecoveryAttempts + 1
	if updateErr := s.datasource.UpdateRecoveryAttempts(ctx, transfer.TransferID, attempts); updateErr != nil {
		logrus.Errorf("failed to update release attempts for transfer %s: %v", transfer.TransferID, updateErr)
	} else {
		transfer.RecoveryAttempts = attempts
	}

	// escalate exactly once, at the attempt that reaches the bound; later
	// failed releases keep retrying without re-paging the review queue
	if attempts == cfg.Transfer.MaxReleaseAttempts {
		reason := fmt.Sprintf("release failed after %d attempts: %v", attempts, err)
		logrus.Warnf("escalating transfer %s: %s", transfer.TransferID, reason)
		if escErr := s.datasource.RecordEscalation(ctx, transfer.TransferID, reason); escErr != nil {
			logrus.Errorf("failed to record escalation for transfer %s: %v", transfer.TransferID, escErr)
		}
		notification.ManualReviewNotification(transfer.TransferID, reason)
	}

	return errors.Wrapf(err, "release failed for transfer %s", transfer.TransferID)
}

// operationKey derives the per-call idempotency key sent to the account
// service. Each saga step gets its own key so a retried reserve can never be
// mistaken for a credit.
func operationKey(transfer *model.Transfer, operation string) string {
	return fmt.Sprintf("%s:%s", transfer.IdempotencyKey, operation)
}
