package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the ledger and pollers depend on them.

// LedgerStore abstracts persistence of account balance records.
// The same ledger logic runs identically over an in-process store, a file,
// or a database — the store only has to honor compare-and-swap writes.
type LedgerStore interface {
	// GetAccount returns the persisted record, or ErrAccountNotFound.
	GetAccount(accountID string) (*AccountRecord, error)

	// PutAccount atomically replaces the record. previousDigest must match
	// the digest currently on disk ("" when creating the record); otherwise
	// the write fails with ErrStoreConflict and nothing is changed.
	// A failed write must never leave a partial balance/digest pair.
	//
	// When creditHash is non-empty the hash is recorded in the credited set
	// in the same atomic write; if it is already present the write fails
	// with ErrDuplicateCredit and nothing is changed. This is the
	// idempotency guard for "credit once per payment".
	PutAccount(rec *AccountRecord, previousDigest, creditHash string) error

	// IsCredited reports whether a payment hash is in the credited set.
	IsCredited(paymentHash string) (bool, error)
}

// TransactionLog is the append-only audit record of credit-affecting
// operations. Append failures are non-fatal to the ledger operation that
// triggered them.
type TransactionLog interface {
	Append(entry AuditEntry) error
	List(accountID string, limit int) ([]AuditEntry, error)
}

// BacklogStore persists pending payments whose outcome is uncertain, so the
// reconciler has a durable input after a restart.
type BacklogStore interface {
	AddPending(p PendingPayment) error
	ClosePending(paymentHash string, state InvoiceState) error
	ListPending() ([]PendingPayment, error)
}

// JobStore persists generation job records.
type JobStore interface {
	PutJob(job GenerationJob) error
	GetJob(id string) (*GenerationJob, error)
}

// ─── External Backends ──────────────────────────────────────────────────────

// PaymentBackend abstracts the Lightning-style payment service.
// Invoice encodings are opaque payloads to this system.
type PaymentBackend interface {
	// CreateInvoice requests a new invoice for the given amount.
	CreateInvoice(ctx context.Context, amount int64) (invoice, paymentHash string, err error)

	// CheckPayment reports whether the invoice identified by paymentHash has
	// settled. Transient failures are returned as errors and retried by the
	// caller on its next tick.
	CheckPayment(ctx context.Context, paymentHash string) (paid bool, err error)
}

// GenerationRequest holds parameters for a generation submission.
type GenerationRequest struct {
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
}

// GenerationBackend abstracts the external video-generation provider.
type GenerationBackend interface {
	Submit(ctx context.Context, req GenerationRequest) (GenerationJob, error)
	Status(ctx context.Context, jobID string) (GenerationJob, error)
}

// AssetProber verifies that a produced asset is actually retrievable before
// a job is surfaced as completed.
type AssetProber interface {
	Probe(ctx context.Context, url string) error
}

// ─── Clock ──────────────────────────────────────────────────────────────────

// Clock abstracts time so poller deadlines and backoff are testable.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
