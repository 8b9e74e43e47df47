// Package db provides the PostgreSQL persistence layer: jobs, stage
// executions, immutable results, and the append-only audit log.
package db

import (
	"context"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"costplan/internal/errors"
	"costplan/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens a PostgreSQL pool and verifies connectivity.
func Connect(ctx context.Context, dsn string, maxOpen int) (*sqlx.DB, error) {
	pool, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Internal("opening database", err)
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxOpen / 2)
	pool.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Upstream("database unreachable", err)
	}
	return pool, nil
}

// Migrate applies the embedded migrations.
func Migrate(pool *sqlx.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Internal("setting migration dialect", err)
	}
	if err := goose.Up(pool.DB, "migrations"); err != nil {
		return errors.Internal("applying migrations", err)
	}
	logging.Logger.Info("database migrations applied", zap.String("dir", "migrations"))
	return nil
}
