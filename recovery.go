package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/internal/notification"
	"github.com/mikebank/transfer-service/model"
)

// TransferRecoveryProcessor periodically re-drives transfers that have sat in
// a non-terminal status past the stuck threshold. A transfer only ends up
// here when a worker crashed mid-saga or an enqueue was lost; re-driving is
// safe because every remote call is idempotent and the per-key lock keeps the
// sweep from racing a live worker.
type TransferRecoveryProcessor struct {
	service             *Service
	batchSize           int
	maxWorkers          int
	pollInterval        time.Duration
	stuckThreshold      time.Duration
	maxRecoveryAttempts int
	stopCh              chan struct{}
	wg                  sync.WaitGroup
	running             bool
	mu                  sync.Mutex
}

func NewTransferRecoveryProcessor(service *Service) *TransferRecoveryProcessor {
	maxWorkers := 10
	pollInterval := 30 * time.Second
	stuckThreshold := 5 * time.Minute
	maxRecoveryAttempts := 3
	cfg, err := config.Fetch()
	if err == nil {
		if cfg.Queue.MaxWorkers > 0 {
			maxWorkers = cfg.Queue.MaxWorkers
		}
		if cfg.Transfer.SweepIntervalSec > 0 {
			pollInterval = time.Duration(cfg.Transfer.SweepIntervalSec) * time.Second
		}
		if cfg.Transfer.StuckThresholdSec > 0 {
			stuckThreshold = time.Duration(cfg.Transfer.StuckThresholdSec) * time.Second
		}
		if cfg.Transfer.MaxRecoveryAttempts > 0 {
			maxRecoveryAttempts = cfg.Transfer.MaxRecoveryAttempts
		}
	}

	return &TransferRecoveryProcessor{
		service:             service,
		batchSize:           maxWorkers * 10,
		maxWorkers:          maxWorkers,
		pollInterval:        pollInterval,
		stuckThreshold:      stuckThreshold,
		maxRecoveryAttempts: maxRecoveryAttempts,
		stopCh:              make(chan struct{}),
	}
}

func (p *TransferRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Transfer recovery processor started")
}

func (p *TransferRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Transfer recovery processor stopped")
}

func (p *TransferRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *TransferRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Transfer recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Transfer recovery processor stop signal received")
			return
		case <-ticker.C:
			p.recoverWithThreshold(ctx, p.stuckThreshold)
		}
	}
}

// RecoverTransfers triggers an immediate recovery sweep with the provided
// threshold. Exposed for the manual trigger API endpoint. The threshold is
// clamped so an operator cannot sweep up transfers a worker is still actively
// driving.
func (s *Service) RecoverTransfers(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < 2*time.Minute {
		threshold = 2 * time.Minute
	}

	processor := NewTransferRecoveryProcessor(s)
	return processor.recoverWithThreshold(ctx, threshold), nil
}

func (p *TransferRecoveryProcessor) recoverWithThreshold(ctx context.Context, threshold time.Duration) int {
	stuckTransfers, err := p.service.datasource.GetStuckTransfers(ctx, threshold, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to get stuck transfers: %v", err)
		return 0
	}

	if len(stuckTransfers) == 0 {
		return 0
	}

	logrus.Infof("Processing %d stuck transfers with %d workers (threshold=%v)", len(stuckTransfers), p.maxWorkers, threshold)

	sem := make(chan struct{}, p.maxWorkers)
	var batchWg sync.WaitGroup

	for _, stuck := range stuckTransfers {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(t *model.Transfer) {
			defer batchWg.Done()
			defer func() { <-sem }()
			if err := p.processStuckTransfer(ctx, t); err != nil {
				logrus.Errorf("failed to recover stuck transfer %s: %v", t.TransferID, err)
			}
		}(stuck)
	}

	batchWg.Wait()
	return len(stuckTransfers)
}

func (p *TransferRecoveryProcessor) processStuckTransfer(ctx context.Context, stuck *model.Transfer) error {
	attempts := stuck.RecoveryAttempts + 1
	if attempts > p.maxRecoveryAttempts {
		// escalate exactly once, at the attempt that crosses the bound;
		// later sweeps see the bumped counter and skip
		if attempts == p.maxRecoveryAttempts+1 {
			reason := fmt.Sprintf("stuck in %s past %d recovery attempts", stuck.Status, p.maxRecoveryAttempts)
			logrus.Warnf("transfer %s exceeded max recovery attempts, escalating", stuck.TransferID)
			if err := p.service.datasource.RecordEscalation(ctx, stuck.TransferID, reason); err != nil {
				return err
			}
			notification.ManualReviewNotification(stuck.TransferID, reason)
			return p.service.datasource.UpdateRecoveryAttempts(ctx, stuck.TransferID, attempts)
		}
		return nil
	}

	if err := p.service.datasource.UpdateRecoveryAttempts(ctx, stuck.TransferID, attempts); err != nil {
		return err
	}

	if err := p.service.DriveTransfer(ctx, stuck.TransferID); err != nil {
		return err
	}

	logrus.Infof("Successfully recovered stuck transfer %s", stuck.TransferID)
	return nil
}
