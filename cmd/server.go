package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	transfer "github.com/mikebank/transfer-service"
	"github.com/mikebank/transfer-service/api"
	"github.com/mikebank/transfer-service/config"
)

func initializeRouter(b *serviceInstance) (*gin.Engine, error) {
	a, err := api.NewAPI(b.service)
	if err != nil {
		return nil, err
	}
	return a.Router(), nil
}

// serverCommands returns the command that starts the HTTP API together with
// the outbox publisher and the recovery sweep.
func serverCommands(b *serviceInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start transfer service server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			router, err := initializeRouter(b)
			if err != nil {
				log.Fatal(err)
			}

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			publisher := transfer.NewOutboxPublisher(b.service)
			publisher.Start(ctx)
			defer publisher.Stop()

			recovery := transfer.NewTransferRecoveryProcessor(b.service)
			recovery.Start(ctx)
			defer recovery.Stop()

			server := &http.Server{
				Addr:    ":" + cfg.Server.Port,
				Handler: router,
			}

			go func() {
				log.Printf("Starting server on http://localhost:%s", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()

			<-ctx.Done()
			log.Println("Shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during shutdown: %v", err)
			}
		},
	}

	return cmd
}
