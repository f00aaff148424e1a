package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "8084"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"TRANSFER_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"TRANSFER_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"TRANSFER_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"TRANSFER_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"TRANSFER_REDIS_DNS"`
}

// AccountServiceConfig describes the remote account service that owns the
// actual balances. The bearer token is issued externally (OAuth2 client
// credentials at the gateway); this service only forwards it.
type AccountServiceConfig struct {
	Url                   string `json:"url" envconfig:"TRANSFER_ACCOUNT_SERVICE_URL"`
	BearerToken           string `json:"bearer_token" envconfig:"TRANSFER_ACCOUNT_SERVICE_TOKEN"`
	TimeoutSec            int    `json:"timeout_sec" envconfig:"TRANSFER_ACCOUNT_SERVICE_TIMEOUT_SEC"`
	MaxRetries            int    `json:"max_retries" envconfig:"TRANSFER_ACCOUNT_SERVICE_MAX_RETRIES"`
	BreakerThreshold      int    `json:"breaker_threshold" envconfig:"TRANSFER_ACCOUNT_SERVICE_BREAKER_THRESHOLD"`
	BreakerCooldownSec    int    `json:"breaker_cooldown_sec" envconfig:"TRANSFER_ACCOUNT_SERVICE_BREAKER_COOLDOWN_SEC"`
	RetryInitialDelayMsec int    `json:"retry_initial_delay_msec" envconfig:"TRANSFER_ACCOUNT_SERVICE_RETRY_INITIAL_DELAY_MSEC"`
}

type QueueConfig struct {
	TransferQueue    string `json:"transfer_queue" envconfig:"TRANSFER_QUEUE_NAME"`
	EventsQueue      string `json:"events_queue" envconfig:"TRANSFER_EVENTS_QUEUE_NAME"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"TRANSFER_QUEUE_MAX_RETRY_ATTEMPTS"`
	MaxWorkers       int    `json:"max_workers" envconfig:"TRANSFER_QUEUE_MAX_WORKERS"`
}

type TransferConfig struct {
	MaxReleaseAttempts    int `json:"max_release_attempts" envconfig:"TRANSFER_MAX_RELEASE_ATTEMPTS"`
	MaxRecoveryAttempts   int `json:"max_recovery_attempts" envconfig:"TRANSFER_MAX_RECOVERY_ATTEMPTS"`
	StuckThresholdSec     int `json:"stuck_threshold_sec" envconfig:"TRANSFER_STUCK_THRESHOLD_SEC"`
	SweepIntervalSec      int `json:"sweep_interval_sec" envconfig:"TRANSFER_SWEEP_INTERVAL_SEC"`
	OutboxPollIntervalSec int `json:"outbox_poll_interval_sec" envconfig:"TRANSFER_OUTBOX_POLL_INTERVAL_SEC"`
	OutboxBatchSize       int `json:"outbox_batch_size" envconfig:"TRANSFER_OUTBOX_BATCH_SIZE"`
}

// RateLimitConfig controls API rate limiting. Nil values disable it.
type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"TRANSFER_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"TRANSFER_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"TRANSFER_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"TRANSFER_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName    string               `json:"project_name" envconfig:"TRANSFER_PROJECT_NAME"`
	Server         ServerConfig         `json:"server"`
	DataSource     DataSourceConfig     `json:"data_source"`
	Redis          RedisConfig          `json:"redis"`
	AccountService AccountServiceConfig `json:"account_service"`
	Queue          QueueConfig          `json:"queue"`
	Transfer       TransferConfig       `json:"transfer"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
	Notification   Notification         `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("transfer", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called transfer.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Transfer Service"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.AccountService.Url == "" {
		log.Println("Error: Account service URL is empty. It's a required field.")
		return errors.New("account service URL is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.AccountService.Url = strings.TrimSpace(cnf.AccountService.Url)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.AccountService.TimeoutSec <= 0 {
		cnf.AccountService.TimeoutSec = 5
	}
	if cnf.AccountService.MaxRetries <= 0 {
		cnf.AccountService.MaxRetries = 3
	}
	if cnf.AccountService.BreakerThreshold <= 0 {
		cnf.AccountService.BreakerThreshold = 5
	}
	if cnf.AccountService.BreakerCooldownSec <= 0 {
		cnf.AccountService.BreakerCooldownSec = 30
	}
	if cnf.AccountService.RetryInitialDelayMsec <= 0 {
		cnf.AccountService.RetryInitialDelayMsec = 100
	}

	if cnf.Queue.TransferQueue == "" {
		cnf.Queue.TransferQueue = "new:transfer"
	}
	if cnf.Queue.EventsQueue == "" {
		cnf.Queue.EventsQueue = "new:transfer_events"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.MaxWorkers <= 0 {
		cnf.Queue.MaxWorkers = 10
	}

	if cnf.Transfer.MaxReleaseAttempts <= 0 {
		cnf.Transfer.MaxReleaseAttempts = 5
	}
	if cnf.Transfer.MaxRecoveryAttempts <= 0 {
		cnf.Transfer.MaxRecoveryAttempts = 3
	}
	if cnf.Transfer.StuckThresholdSec <= 0 {
		cnf.Transfer.StuckThresholdSec = 300
	}
	if cnf.Transfer.SweepIntervalSec <= 0 {
		cnf.Transfer.SweepIntervalSec = 30
	}
	if cnf.Transfer.OutboxPollIntervalSec <= 0 {
		cnf.Transfer.OutboxPollIntervalSec = 3
	}
	if cnf.Transfer.OutboxBatchSize <= 0 {
		cnf.Transfer.OutboxBatchSize = 50
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if err := mockConfig.validateAndAddDefaults(); err != nil {
		log.Printf("Warning: mock config validation: %v", err)
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
