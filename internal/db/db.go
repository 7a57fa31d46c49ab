// Package db holds the PostgreSQL side of the postgres storage driver: a
// single objects table keyed by logical path.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxIdleTime = 5 * time.Minute
)

type DB struct {
	Pool *sql.DB
}

// New opens a pool against databaseURL and pings it once.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetConnMaxIdleTime(connMaxIdleTime)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() error {
	return d.Pool.Close()
}

// Migrate creates the objects table when missing. It is safe to run on
// every start.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := d.Pool.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate objects table: %w", err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS objects (
    path        TEXT PRIMARY KEY,
    data        BYTEA NOT NULL DEFAULT ''::bytea,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_objects_prefix ON objects (path text_pattern_ops)`,
}
