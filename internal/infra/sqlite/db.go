// Package sqlite persists the credit ledger in a single client-resident
// SQLite database: account balance records, the transaction audit log, the
// credited-payment idempotency set, the reconciliation backlog, and
// generation job records.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle. A single writer matches the ledger's
// single-writer-per-account model.
type DB struct {
	db *sql.DB
}

// Open creates or opens the database under dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "lumaledger.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migration: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// One balance record per account. The full record (balance, history,
		// digest) is one JSON document so a write replaces it atomically; a
		// torn balance/digest pair would read as corruption.
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id  TEXT PRIMARY KEY,
			record_json TEXT NOT NULL,
			digest      TEXT NOT NULL,
			updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Idempotency guard: payment hashes already credited.
		`CREATE TABLE IF NOT EXISTS credited_payments (
			payment_hash TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			credited_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Append-only transaction audit log (parallel to ledger history,
		// never the source of truth for balances).
		`CREATE TABLE IF NOT EXISTS audit_log (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id   TEXT NOT NULL,
			type         TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			payment_hash TEXT,
			job_id       TEXT,
			timestamp    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_account ON audit_log(account_id, id)`,

		// Reconciliation backlog: payments whose outcome is uncertain.
		`CREATE TABLE IF NOT EXISTS pending_payments (
			payment_hash TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			token        TEXT NOT NULL,
			state        TEXT NOT NULL DEFAULT 'WAITING',
			created_at   TEXT NOT NULL,
			closed_at    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_open ON pending_payments(state)`,

		// Generation job records.
		`CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL,
			asset_url  TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
	}
}
