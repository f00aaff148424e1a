package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/internal/apierror"
	redis_db "github.com/mikebank/transfer-service/internal/redis-db"
	"github.com/mikebank/transfer-service/model"
)

// processTransfer drives a transfer pulled from the submission queue. A
// returned error triggers an asynq retry; a transfer that is already terminal
// (or that another driver currently holds in a newer state) acks cleanly.
func (b *serviceInstance) processTransfer(ctx context.Context, t *asynq.Task) error {
	var transfer model.Transfer
	if err := json.Unmarshal(t.Payload(), &transfer); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.service.DriveTransfer(ctx, transfer.TransferID); err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			// admission never committed, nothing to drive
			logrus.Warnf("transfer %s not found, dropping task", transfer.TransferID)
			return nil
		}
		logrus.Infof("Transfer %s pushed back for retry due to error: %v", transfer.TransferID, err)
		return err
	}

	log.Println(" [*] Transfer Processed", transfer.TransferID)
	return nil
}

// processTransferEvent consumes a transfer event off the events queue. This
// is the delivery point for downstream consumers; the event is acked once it
// has been handed over.
func (b *serviceInstance) processTransferEvent(_ context.Context, t *asynq.Task) error {
	var event model.TransferEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logrus.Error(err)
		return err
	}

	log.Printf(" [*] Event Delivered %s %s (%s)", t.Type(), event.TransferID, event.EventID)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.TransferQueue] = 3
	queues[cfg.Queue.EventsQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Queue.MaxWorkers,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *serviceInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.TransferQueue, b.processTransfer)

	// event task types are the event names themselves
	mux.HandleFunc(model.EventTransferCompleted, b.processTransferEvent)
	mux.HandleFunc(model.EventTransferFailed, b.processTransferEvent)
	mux.HandleFunc(model.EventTransferCompensated, b.processTransferEvent)
}

// workerCommands defines the "workers" command that consumes the submission
// and events queues.
func workerCommands(b *serviceInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start transfer service workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
