package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/mikebank/transfer-service/config"

	_ "github.com/lib/pq"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error: %v", err)
		return nil, err
	}
	err = createTransferTable(db)
	if err != nil {
		return nil, err
	}
	err = createOutboxTable(db)
	if err != nil {
		return nil, err
	}
	err = createEscalationTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createTransferTable creates a PostgreSQL table for the Transfer struct.
// The unique index on idempotency_key is what makes admission atomic: a
// concurrent duplicate insert collides and is resolved by re-reading.
func createTransferTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transfers (
			id SERIAL PRIMARY KEY,
			transfer_id TEXT NOT NULL UNIQUE,
			idempotency_key TEXT NOT NULL UNIQUE,
			request_hash TEXT NOT NULL,
			source_account_ref TEXT NOT NULL,
			destination_account_ref TEXT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			reservation_token TEXT,
			failure_reason TEXT,
			recovery_attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (source_account_ref <> destination_account_ref)
		);
		CREATE INDEX IF NOT EXISTS idx_transfers_status_updated
			ON transfers (status, updated_at);
	`)
	return err
}

// createOutboxTable creates the outbox table. Rows are appended in the same
// transaction as the transfer mutation they describe and published_at stays
// NULL until the bus acknowledges delivery.
func createOutboxTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id SERIAL PRIMARY KEY,
			outbox_id TEXT NOT NULL UNIQUE,
			transfer_id TEXT NOT NULL REFERENCES transfers(transfer_id),
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			published_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox (created_at) WHERE published_at IS NULL;
	`)
	return err
}

func createEscalationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS escalations (
			id SERIAL PRIMARY KEY,
			escalation_id TEXT NOT NULL UNIQUE,
			transfer_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			resolved_at TIMESTAMP
		);
	`)
	return err
}
