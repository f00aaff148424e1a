package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: ""},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		AccountService: AccountServiceConfig{
			Url: "http://card-service:8083",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:      RedisConfig{Dns: ""},
		AccountService: AccountServiceConfig{
			Url: "http://card-service:8083",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "account service URL is required" {
		t.Errorf("Expected account service URL required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource:  DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
		AccountService: AccountServiceConfig{
			Url: "http://card-service:8083",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
	if cnf.AccountService.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cnf.AccountService.MaxRetries)
	}
	if cnf.AccountService.BreakerThreshold != 5 {
		t.Errorf("Expected default breaker threshold 5, got %d", cnf.AccountService.BreakerThreshold)
	}
	if cnf.Transfer.MaxReleaseAttempts != 5 {
		t.Errorf("Expected default max release attempts 5, got %d", cnf.Transfer.MaxReleaseAttempts)
	}
	if cnf.Queue.TransferQueue != "new:transfer" {
		t.Errorf("Expected default transfer queue name, got %s", cnf.Queue.TransferQueue)
	}
}

func TestInitConfigFromFile(t *testing.T) {
	cnf := Configuration{
		ProjectName: "File Project",
		DataSource:  DataSourceConfig{Dns: "postgres://localhost:5432/transfers"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
		AccountService: AccountServiceConfig{
			Url: "http://card-service:8083",
		},
	}

	f, err := os.CreateTemp(t.TempDir(), "transfer-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(&cnf); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	if err := InitConfig(f.Name()); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	loaded, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if loaded.ProjectName != "File Project" {
		t.Errorf("Expected project name from file, got %s", loaded.ProjectName)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TRANSFER_DATA_SOURCE_DNS", "postgres://env-host:5432/transfers")
	t.Setenv("TRANSFER_REDIS_DNS", "env-redis:6379")
	t.Setenv("TRANSFER_ACCOUNT_SERVICE_URL", "http://env-card-service:8083")

	if err := InitConfig("does-not-exist.json"); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	loaded, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if loaded.DataSource.Dns != "postgres://env-host:5432/transfers" {
		t.Errorf("Expected env data source dns, got %s", loaded.DataSource.Dns)
	}
	if loaded.AccountService.Url != "http://env-card-service:8083" {
		t.Errorf("Expected env account service url, got %s", loaded.AccountService.Url)
	}
}
