package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	transfer "github.com/mikebank/transfer-service"
	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/database"
	"github.com/mikebank/transfer-service/internal/notification"
)

// CLI wraps the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// serviceInstance holds the orchestrator and its configuration for the
// subcommands.
type serviceInstance struct {
	service *transfer.Service
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the orchestrator before any
// subcommand executes.
func preRun(app *serviceInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("transfer.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newService, err := setupService(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.service = newService
		app.cnf = cnf

		return nil
	}
}

func setupService(cfg *config.Configuration) (*transfer.Service, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newService, err := transfer.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating transfer service: %v", err)
	}
	return newService, nil
}

func NewCLI() *CLI {
	var configFile string
	b := &serviceInstance{}

	var rootCmd = &cobra.Command{
		Use:   "transfer-service",
		Short: "funds transfer orchestration service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./transfer.json", "Configuration file for the transfer service")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
