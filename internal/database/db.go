package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/config"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// NewWithDB wraps an already opened connection
func NewWithDB(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{DB: db, logger: logger}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                VARCHAR(64) PRIMARY KEY,
	order_number      VARCHAR(32) NOT NULL UNIQUE,
	user_id           VARCHAR(64),
	is_guest_order    BOOLEAN NOT NULL DEFAULT FALSE,
	guest_email       VARCHAR(255),
	guest_name        VARCHAR(255),
	guest_phone       VARCHAR(32),
	subtotal          NUMERIC(12, 2) NOT NULL,
	tax               NUMERIC(12, 2) NOT NULL,
	total             NUMERIC(12, 2) NOT NULL CHECK (total > 0),
	is_rush           BOOLEAN NOT NULL DEFAULT FALSE,
	order_status      VARCHAR(32) NOT NULL,
	payment_status    VARCHAR(32) NOT NULL,
	payment_reference VARCHAR(255),
	cancel_reason     TEXT,
	risk_score        INT CHECK (risk_score BETWEEN 0 AND 100),
	risk_level        VARCHAR(16),
	requires_review   BOOLEAN NOT NULL DEFAULT FALSE,
	version           INT NOT NULL DEFAULT 1,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	paid_at           TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	cancelled_at      TIMESTAMPTZ,
	CHECK ((is_guest_order AND guest_email IS NOT NULL AND user_id IS NULL)
		OR (NOT is_guest_order AND user_id IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_order_status ON orders(order_status);
CREATE INDEX IF NOT EXISTS idx_orders_cursor ON orders(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS order_items (
	id           VARCHAR(64) PRIMARY KEY,
	order_id     VARCHAR(64) NOT NULL REFERENCES orders(id),
	position     INT NOT NULL,
	service_type VARCHAR(32) NOT NULL,
	description  TEXT NOT NULL,
	quantity     INT NOT NULL CHECK (quantity > 0),
	unit_price   NUMERIC(12, 2) NOT NULL,
	total_price  NUMERIC(12, 2) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

CREATE TABLE IF NOT EXISTS outbox_messages (
	id                  SERIAL PRIMARY KEY,
	aggregate_type      VARCHAR(50) NOT NULL,
	aggregate_id        VARCHAR(64) NOT NULL,
	event_type          VARCHAR(50) NOT NULL,
	payload             JSONB NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at        TIMESTAMPTZ,
	processing_attempts INT NOT NULL DEFAULT 0,
	last_error          TEXT,
	status              VARCHAR(20) NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);

CREATE TABLE IF NOT EXISTS dead_letter_messages (
	id                  SERIAL PRIMARY KEY,
	original_message_id INT NOT NULL,
	aggregate_type      VARCHAR(50) NOT NULL,
	aggregate_id        VARCHAR(64) NOT NULL,
	event_type          VARCHAR(50) NOT NULL,
	payload             JSONB NOT NULL,
	error_message       TEXT NOT NULL,
	attempts            INT NOT NULL DEFAULT 0,
	status              VARCHAR(20) NOT NULL DEFAULT 'pending',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_dead_letter_status ON dead_letter_messages(status);
`

// RunMigrations creates the schema if it does not exist yet
func (d *Database) RunMigrations() error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}
