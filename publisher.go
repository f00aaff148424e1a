package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/model"
)

// EventSink is where drained outbox records go. The production sink is the
// Redis-backed events queue; tests swap in a recording fake.
type EventSink interface {
	PublishEvent(ctx context.Context, record *model.OutboxRecord) error
}

// OutboxPublisher drains committed-but-unpublished outbox records to the
// event sink. Records are marked published only after the sink acknowledges
// them, so delivery is at-least-once and consumers dedupe by event ID.
type OutboxPublisher struct {
	service      *Service
	sink         EventSink
	batchSize    int
	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex
}

func NewOutboxPublisher(service *Service) *OutboxPublisher {
	batchSize := 50
	pollInterval := 3 * time.Second
	cfg, err := config.Fetch()
	if err == nil {
		if cfg.Transfer.OutboxBatchSize > 0 {
			batchSize = cfg.Transfer.OutboxBatchSize
		}
		if cfg.Transfer.OutboxPollIntervalSec > 0 {
			pollInterval = time.Duration(cfg.Transfer.OutboxPollIntervalSec) * time.Second
		}
	}

	return &OutboxPublisher{
		service:      service,
		sink:         service.queue,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

func (p *OutboxPublisher) Start(ctx context.Context) {
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

	logrus.Info("Outbox publisher started")
}

func (p *OutboxPublisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Outbox publisher stopped")
}

func (p *OutboxPublisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OutboxPublisher) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Outbox publisher context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Outbox publisher stop signal received")
			return
		case <-ticker.C:
			if _, err := p.DrainOnce(ctx); err != nil {
				logrus.Errorf("outbox drain failed: %v", err)
			}
		}
	}
}

// DrainOnce publishes one batch of unpublished records and returns how many
// it delivered. Per-transfer ordering is preserved: if a record fails to
// publish, later records of the same transfer are skipped until the next
// drain so a consumer never sees a transfer's events out of order.
func (p *OutboxPublisher) DrainOnce(ctx context.Context) (int, error) {
	records, err := p.service.datasource.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	blocked := make(map[string]bool)
	for _, record := range records {
		if blocked[record.TransferID] {
			continue
		}

		if err := p.sink.PublishEvent(ctx, record); err != nil {
			logrus.Errorf("failed to publish outbox record %s: %v", record.OutboxID, err)
			blocked[record.TransferID] = true
			continue
		}

		if err := p.service.datasource.MarkOutboxPublished(ctx, record.OutboxID); err != nil {
			// a competing drain got here first, the record is delivered
			// either way
			logrus.Warnf("failed to mark outbox record %s published: %v", record.OutboxID, err)
			continue
		}
		published++
	}
	return published, nil
}
