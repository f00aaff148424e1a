package transfer

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mikebank/transfer-service/accounts"
	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/database"
	redis_db "github.com/mikebank/transfer-service/internal/redis-db"
	"github.com/mikebank/transfer-service/model"
)

// TaskQueue is the submission and event bus surface the orchestrator needs.
// Implemented by Queue; tests swap in a recording fake.
type TaskQueue interface {
	EnqueueTransfer(ctx context.Context, transfer *model.Transfer) error
	PublishEvent(ctx context.Context, record *model.OutboxRecord) error
}

// Service is the transfer orchestrator. It owns the saga state machine and is
// the only writer of transfer status; the API, the queue workers and the
// recovery sweep all go through it.
type Service struct {
	datasource database.IDataSource
	accounts   accounts.AccountClient
	queue      TaskQueue
	redis      redis.UniversalClient
}

// NewService wires a Service from explicit collaborators. Used by tests and by
// anything that needs to swap a fake in for the account client or the queue.
func NewService(datasource database.IDataSource, accountClient accounts.AccountClient, queue TaskQueue, redisClient redis.UniversalClient) *Service {
	return &Service{
		datasource: datasource,
		accounts:   accountClient,
		queue:      queue,
		redis:      redisClient,
	}
}

// New initializes a Service from the loaded configuration.
func New(datasource database.IDataSource) (*Service, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	accountClient := accounts.NewClient(&configuration.AccountService)
	return NewService(datasource, accountClient, newQueue, redisClient.Client()), nil
}
