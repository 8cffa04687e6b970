package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"callagent/internal/config"
)

// Connection manages the database connection pool
type Connection struct {
	DB *sql.DB
}

// NewConnection opens a pooled connection and verifies connectivity
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return &Connection{DB: db}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

// EnsureSchema creates the call history table when it is missing. The table
// is append-only; live status lives in the in-memory registry.
func (c *Connection) EnsureSchema() error {
	_, err := c.DB.Exec(`
		CREATE TABLE IF NOT EXISTS call_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			call_id VARCHAR(64) NOT NULL,
			phone_number VARCHAR(32) NOT NULL,
			session_name VARCHAR(128) NOT NULL,
			dispatch_ref VARCHAR(128) NOT NULL,
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_call_id (call_id)
		)`)
	if err != nil {
		return fmt.Errorf("error creating call_history table: %w", err)
	}
	return nil
}
