// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the application — it depends on nothing.
package domain

import "time"

// ─── Transaction Types ──────────────────────────────────────────────────────

// TransactionType is the business direction of a ledger mutation.
type TransactionType string

const (
	TxCredit TransactionType = "CREDIT"
	TxDebit  TransactionType = "DEBIT"
	TxRefund TransactionType = "REFUND"
)

// Signed returns the balance delta this transaction type carries:
// credits and refunds add, debits subtract.
func (t TransactionType) Signed(amount int64) int64 {
	if t == TxDebit {
		return -amount
	}
	return amount
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxCredit, TxDebit, TxRefund:
		return true
	}
	return false
}

// Transaction is a single immutable entry in an account's history.
// Created once, never mutated, never deleted.
type Transaction struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Amount      int64           `json:"amount"` // always positive; Type carries the sign
	Type        TransactionType `json:"type"`
	Reason      string          `json:"reason"`
	PaymentHash string          `json:"payment_hash,omitempty"`
	JobID       string          `json:"job_id,omitempty"`
}

// ─── Account Record ─────────────────────────────────────────────────────────

// AccountRecord is the persisted balance record for one account.
// Balance must equal the signed sum of History at all times; Digest is an
// HMAC over the visible state and detects out-of-band edits of the record.
type AccountRecord struct {
	AccountID   string        `json:"account_id"`
	Balance     int64         `json:"balance"`
	LastUpdated time.Time     `json:"last_updated"`
	History     []Transaction `json:"history"`
	Digest      string        `json:"digest"`
}

// SumHistory recomputes the balance implied by the transaction history.
func (r *AccountRecord) SumHistory() int64 {
	var sum int64
	for _, tx := range r.History {
		sum += tx.Type.Signed(tx.Amount)
	}
	return sum
}

// ─── Pending Invoice ────────────────────────────────────────────────────────

// InvoiceState tracks an invoice through its lifecycle.
// Terminal states (Paid, Expired, Canceled) are sticky.
type InvoiceState string

const (
	InvoiceCreated  InvoiceState = "CREATED"
	InvoiceWaiting  InvoiceState = "WAITING"
	InvoicePaid     InvoiceState = "PAID"
	InvoiceExpired  InvoiceState = "EXPIRED"
	InvoiceCanceled InvoiceState = "CANCELED"
)

// Terminal reports whether the state admits no further transitions.
func (s InvoiceState) Terminal() bool {
	switch s {
	case InvoicePaid, InvoiceExpired, InvoiceCanceled:
		return true
	}
	return false
}

// PendingInvoice is a payment request awaiting settlement.
// The payment request string is opaque to this system.
type PendingInvoice struct {
	AccountID   string       `json:"account_id"`
	Invoice     string       `json:"invoice"` // opaque payment request
	PaymentHash string       `json:"payment_hash"`
	Amount      int64        `json:"amount"`
	State       InvoiceState `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// ─── Generation Job ─────────────────────────────────────────────────────────

// JobState tracks a generation job through its lifecycle.
type JobState string

const (
	JobQueued     JobState = "QUEUED"
	JobProcessing JobState = "PROCESSING" // the provider reports this as "dreaming"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
)

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// GenerationJob is one submitted generation request.
// AssetURL is populated only once the asset has been verified fetchable;
// the record is immutable after reaching a terminal state.
type GenerationJob struct {
	ID        string    `json:"id"` // assigned by the provider
	AccountID string    `json:"account_id,omitempty"`
	State     JobState  `json:"state"`
	AssetURL  string    `json:"asset_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ─── Audit Log ──────────────────────────────────────────────────────────────

// AuditEntry is one row in the append-only transaction audit log.
// The audit log parallels ledger history but is never the source of truth
// for balances; it exists for audit and replay.
type AuditEntry struct {
	AccountID   string          `json:"account_id"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	Reason      string          `json:"reason"`
	PaymentHash string          `json:"payment_hash,omitempty"`
	JobID       string          `json:"job_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ─── Reconciliation ─────────────────────────────────────────────────────────

// PendingPayment is one backlog item whose settlement outcome is uncertain,
// typically persisted before a crash or a missed confirmation.
// Token is the opaque verification token tying the item to its account;
// items without it are rejected before any network I/O.
type PendingPayment struct {
	AccountID   string    `json:"account_id"`
	PaymentHash string    `json:"payment_hash"`
	Amount      int64     `json:"amount"`
	Token       string    `json:"token"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReconcileResult reports the outcome of one reconciliation batch.
type ReconcileResult struct {
	// Settled[i] corresponds to the i-th input item.
	Settled []bool `json:"settled"`
	// VerifiedHashes lists payment hashes confirmed paid (and credited),
	// so the caller can close them out of the backlog.
	VerifiedHashes []string `json:"verified_hashes"`
}
