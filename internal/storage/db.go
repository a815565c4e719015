// Package storage provides the shared Postgres connection and schema
// migrations for corpus. Both the vector index and the chat store run
// against the same database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Options configures the database connection pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("storage: dsn is required")
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	return db, nil
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrator, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if _, err := migrator.Up(ctx, 0); err != nil {
		return fmt.Errorf("storage: run migrations: %w", err)
	}
	return nil
}
