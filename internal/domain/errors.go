package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Expected outcomes are surfaced as typed errors so callers can branch on
// them with errors.Is instead of string matching.

var (
	// ErrInsufficientBalance is the normal outcome of a debit that exceeds
	// the current balance. The balance is unchanged.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrIntegrityViolation marks a persisted record whose digest no longer
	// matches its contents. The record's balance reads as zero until an
	// operator repairs it; it is never auto-repaired.
	ErrIntegrityViolation = errors.New("ledger record failed integrity verification")

	// ErrDuplicateCredit is returned when a payment hash has already been
	// credited. The guard makes the second attempt a no-op.
	ErrDuplicateCredit = errors.New("payment hash already credited")

	// ErrInvoiceExpired is the terminal outcome of an invoice whose deadline
	// passed without settlement.
	ErrInvoiceExpired = errors.New("invoice expired")

	// ErrInvoiceCanceled is the terminal outcome of an invoice the caller
	// stopped watching.
	ErrInvoiceCanceled = errors.New("invoice canceled")

	// ErrPaymentUnverified is returned when reconciliation exhausts its
	// retries without a settlement confirmation.
	ErrPaymentUnverified = errors.New("could not verify payment")

	// ErrBatchRejected marks a reconciliation batch containing items without
	// a verification token; the whole batch is refused before any network I/O.
	ErrBatchRejected = errors.New("reconciliation batch rejected")

	// ErrAccountNotFound is returned by stores when no record exists.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStoreConflict is returned by a store when a compare-and-swap write
	// loses to a concurrent mutation of the same record.
	ErrStoreConflict = errors.New("concurrent ledger modification")

	// ErrJobNotFound is returned when a generation job is unknown.
	ErrJobNotFound = errors.New("generation job not found")
)
