package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/mikebank/transfer-service/config"
	redis_db "github.com/mikebank/transfer-service/internal/redis-db"
	"github.com/mikebank/transfer-service/model"
)

// Queue wraps the Redis-backed task queue. It carries both transfer
// submissions (consumed by the saga workers) and outbox events (the bus the
// publisher drains into).
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueTransfer hands an admitted transfer to the saga workers. The task ID
// is the transfer ID, so a re-submission of an already queued transfer is a
// no-op rather than a second in-flight copy.
func (q *Queue) EnqueueTransfer(ctx context.Context, transfer *model.Transfer) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := transfer.ToJSON()
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(transfer.TransferID),
		asynq.Queue(cfg.Queue.TransferQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cfg.Queue.TransferQueue, payload, taskOptions...)
	_, err = q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		log.Printf("Error enqueueing transfer %s: %v", transfer.TransferID, err)
		return err
	}
	log.Printf(" [*] Successfully enqueued transfer: %s", transfer.TransferID)
	return nil
}

// PublishEvent pushes a committed outbox record onto the events queue. The
// task ID is the outbox ID, so a record re-published by a competing drain (or
// after a crash between publish and mark) deduplicates on the bus side.
func (q *Queue) PublishEvent(ctx context.Context, record *model.OutboxRecord) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(record.OutboxID),
		asynq.Queue(cfg.Queue.EventsQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(record.EventType, record.Payload, taskOptions...)
	_, err = q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	}
	return nil
}

// GetTransferFromQueue retrieves a queued transfer task by its ID, if present.
func (q *Queue) GetTransferFromQueue(transferID string) (*model.Transfer, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	task, err := q.Inspector.GetTaskInfo(cfg.Queue.TransferQueue, transferID)
	if err != nil || task == nil {
		return nil, nil
	}
	var transfer model.Transfer
	if err := json.Unmarshal(task.Payload, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}
