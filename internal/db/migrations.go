package db

import (
	"database/sql"
	"fmt"
)

// currentSchemaVersion is the version written by initializeSchema
const currentSchemaVersion = 1

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var version int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if version < 1 || version > currentSchemaVersion {
		return fmt.Errorf("invalid schema version: %d", version)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		schemaVersionTable,
		certificateRequestsTable,
		certificateRequestsIndexes,
		notificationsTable,
		notificationsIndexes,
		auditLogsTable,
		auditLogsIndexes,
	} {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	// Insert initial schema version
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificateRequestsTable = `
CREATE TABLE certificate_requests (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
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
    certificate_issued INTEGER NOT NULL DEFAULT 0,
    pfx_data           TEXT,
    pfx_password       TEXT,
    certificate_serial TEXT,
    valid_from         DATETIME,
    valid_until        DATETIME,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    approved_at        DATETIME,
    issued_at          DATETIME,
    revoked_at         DATETIME,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    version            INTEGER NOT NULL DEFAULT 1
)`

	certificateRequestsIndexes = `
CREATE INDEX idx_requests_status ON certificate_requests(status);
CREATE INDEX idx_requests_tax_id ON certificate_requests(tax_id);
CREATE INDEX idx_requests_created_at ON certificate_requests(created_at)`

	notificationsTable = `
CREATE TABLE notifications (
    id          TEXT PRIMARY KEY,
    protocol    TEXT NOT NULL,
    status      TEXT NOT NULL,
    recipient   TEXT NOT NULL,
    template    TEXT NOT NULL,
    provider    TEXT NOT NULL,
    provider_id TEXT,
    success     INTEGER NOT NULL,
    error_msg   TEXT,
    sent_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	notificationsIndexes = `
CREATE INDEX idx_notifications_protocol ON notifications(protocol);
CREATE INDEX idx_notifications_sent_at ON notifications(sent_at)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action      TEXT NOT NULL,
    protocol    TEXT,
    source      TEXT NOT NULL,
    status      TEXT,
    success     INTEGER NOT NULL,
    error_msg   TEXT,
    details     TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_protocol ON audit_logs(protocol);
CREATE INDEX idx_audit_success ON audit_logs(success)`
)
