// Package pgstore implements the repository interfaces on Postgres through pgx.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool for dsn and verifies it with a ping
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema if it does not exist yet
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS certificate_requests (
  id                 BIGSERIAL PRIMARY KEY,
  protocol           TEXT NOT NULL UNIQUE,
  common_name        TEXT NOT NULL,
  tax_id             TEXT NOT NULL,
  email              TEXT NOT NULL,
  phone              TEXT,
  birth_date         TEXT,
  applicant_type     TEXT NOT NULL DEFAULT 'individual',
  status             TEXT NOT NULL DEFAULT 'created',
  emission_url       TEXT,
  rejection_reason   TEXT,
  certificate_issued BOOLEAN NOT NULL DEFAULT FALSE,
  pfx_data           TEXT,
  pfx_password       TEXT,
  certificate_serial TEXT,
  valid_from         TIMESTAMPTZ,
  valid_until        TIMESTAMPTZ,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  approved_at        TIMESTAMPTZ,
  issued_at          TIMESTAMPTZ,
  revoked_at         TIMESTAMPTZ,
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  version            BIGINT NOT NULL DEFAULT 1
)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_status ON certificate_requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_created_at ON certificate_requests(created_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id          UUID PRIMARY KEY,
  protocol    TEXT NOT NULL,
  status      TEXT NOT NULL,
  recipient   TEXT NOT NULL,
  template    TEXT NOT NULL,
  provider    TEXT NOT NULL,
  provider_id TEXT,
  success     BOOLEAN NOT NULL,
  error_msg   TEXT,
  sent_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_protocol ON notifications(protocol)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
  id        BIGSERIAL PRIMARY KEY,
  timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
  action    TEXT NOT NULL,
  protocol  TEXT,
  source    TEXT NOT NULL,
  status    TEXT,
  success   BOOLEAN NOT NULL,
  error_msg TEXT,
  details   TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_protocol ON audit_logs(protocol)`,
}
