package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides access to the PostgreSQL database holding module configurations.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema creates the tables the store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS module_configs (
	module_id  TEXT PRIMARY KEY,
	config     JSONB NOT NULL DEFAULT '{}'::jsonb,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate applies Schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
