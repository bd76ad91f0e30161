package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
)

// ─── Ledger Store ───────────────────────────────────────────────────────────

// GetAccount returns the persisted balance record.
func (d *DB) GetAccount(accountID string) (*domain.AccountRecord, error) {
	var recordJSON string
	err := d.db.QueryRow(`
		SELECT record_json FROM accounts WHERE account_id = ?
	`, accountID).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.AccountRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("decode account record %s: %w", accountID, err)
	}
	return &rec, nil
}

// PutAccount atomically replaces the record, enforcing compare-and-swap on
// the previous digest and recording the credited payment hash in the same
// transaction when given. The whole write commits or none of it does.
func (d *DB) PutAccount(rec *domain.AccountRecord, previousDigest, creditHash string) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode account record %s: %w", rec.AccountID, err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var currentDigest string
	err = tx.QueryRow(`SELECT digest FROM accounts WHERE account_id = ?`, rec.AccountID).Scan(&currentDigest)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if currentDigest != previousDigest {
		return domain.ErrStoreConflict
	}

	if creditHash != "" {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM credited_payments WHERE payment_hash = ?`, creditHash).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrDuplicateCredit
		}
		if _, err := tx.Exec(`
			INSERT INTO credited_payments (payment_hash, account_id, amount)
			VALUES (?, ?, ?)
		`, creditHash, rec.AccountID, rec.Balance); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO accounts (account_id, record_json, digest, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(account_id) DO UPDATE SET
			record_json = excluded.record_json,
			digest      = excluded.digest,
			updated_at  = datetime('now')
	`, rec.AccountID, string(recordJSON), rec.Digest); err != nil {
		return err
	}

	return tx.Commit()
}

// IsCredited reports whether the payment hash is in the credited set.
func (d *DB) IsCredited(paymentHash string) (bool, error) {
	var n int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM credited_payments WHERE payment_hash = ?
	`, paymentHash).Scan(&n)
	return n > 0, err
}

// ─── Transaction Audit Log ──────────────────────────────────────────────────

// Append inserts one audit log row.
func (d *DB) Append(entry domain.AuditEntry) error {
	_, err := d.db.Exec(`
		INSERT INTO audit_log (account_id, type, amount, reason, payment_hash, job_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.AccountID, string(entry.Type), entry.Amount, entry.Reason,
		nullable(entry.PaymentHash), nullable(entry.JobID),
		entry.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

// List returns up to limit audit entries for the account, oldest first.
// limit <= 0 returns everything.
func (d *DB) List(accountID string, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT account_id, type, amount, reason, payment_hash, job_id, timestamp
		FROM audit_log WHERE account_id = ? ORDER BY id`
	args := []any{accountID}
	if limit > 0 {
		query = `
		SELECT account_id, type, amount, reason, payment_hash, job_id, timestamp
		FROM (
			SELECT id, account_id, type, amount, reason, payment_hash, job_id, timestamp
			FROM audit_log WHERE account_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var txType, ts string
		var paymentHash, jobID sql.NullString
		if err := rows.Scan(&e.AccountID, &txType, &e.Amount, &e.Reason, &paymentHash, &jobID, &ts); err != nil {
			return nil, err
		}
		e.Type = domain.TransactionType(txType)
		e.PaymentHash = paymentHash.String
		e.JobID = jobID.String
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── Reconciliation Backlog ─────────────────────────────────────────────────

// AddPending records a payment whose settlement outcome is uncertain.
func (d *DB) AddPending(p domain.PendingPayment) error {
	_, err := d.db.Exec(`
		INSERT INTO pending_payments (payment_hash, account_id, amount, token, state, created_at)
		VALUES (?, ?, ?, ?, 'WAITING', ?)
		ON CONFLICT(payment_hash) DO NOTHING
	`, p.PaymentHash, p.AccountID, p.Amount, p.Token, p.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ClosePending marks a backlog entry with its terminal state.
func (d *DB) ClosePending(paymentHash string, state domain.InvoiceState) error {
	_, err := d.db.Exec(`
		UPDATE pending_payments
		SET state = ?, closed_at = datetime('now')
		WHERE payment_hash = ? AND state = 'WAITING'
	`, string(state), paymentHash)
	return err
}

// ListPending returns the open backlog, oldest first.
func (d *DB) ListPending() ([]domain.PendingPayment, error) {
	rows, err := d.db.Query(`
		SELECT payment_hash, account_id, amount, token, created_at
		FROM pending_payments WHERE state = 'WAITING' ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.PendingPayment
	for rows.Next() {
		var p domain.PendingPayment
		var ts string
		if err := rows.Scan(&p.PaymentHash, &p.AccountID, &p.Amount, &p.Token, &ts); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		items = append(items, p)
	}
	return items, rows.Err()
}

// ─── Generation Jobs ────────────────────────────────────────────────────────

// PutJob stores or replaces a job record.
func (d *DB) PutJob(job domain.GenerationJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	_, err := d.db.Exec(`
		INSERT INTO jobs (id, account_id, state, asset_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state      = excluded.state,
			asset_url  = excluded.asset_url,
			updated_at = excluded.updated_at
	`, job.ID, job.AccountID, string(job.State), job.AssetURL,
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// GetJob returns the job record, or ErrJobNotFound.
func (d *DB) GetJob(id string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	var state, createdAt, updatedAt string
	err := d.db.QueryRow(`
		SELECT id, account_id, state, asset_url, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.AccountID, &state, &job.AssetURL, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.State = domain.JobState(state)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &job, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
