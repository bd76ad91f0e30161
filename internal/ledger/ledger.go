// Package ledger implements the credit ledger: a tamper-evident balance of
// prepaid credits per account. Every mutation is expressed as an immutable
// transaction, recomputes the record's integrity digest, and is persisted
// atomically through the injected store.
//
// The ledger is single-writer per account: mutations for one account are
// serialized on a per-account mutex so the debit check-then-act sequence is
// a single logical unit.
package ledger

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/infra/observability"
)

// Ledger owns account balance records. All mutations go through it.
type Ledger struct {
	store  domain.LedgerStore
	txlog  domain.TransactionLog
	clock  domain.Clock
	secret []byte

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-account write locks
}

// Options configures optional ledger collaborators.
type Options struct {
	// TxLog receives a fire-and-forget audit entry for every mutation.
	// Append failures are logged and counted but never fail the mutation.
	TxLog domain.TransactionLog

	// Clock defaults to the wall clock.
	Clock domain.Clock
}

// New creates a credit ledger over the given store. The secret keys the
// integrity digest of every persisted record.
func New(store domain.LedgerStore, secret []byte, opts Options) *Ledger {
	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Ledger{
		store:  store,
		txlog:  opts.TxLog,
		clock:  clock,
		secret: secret,
		locks:  make(map[string]*sync.Mutex),
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetBalance returns the account's balance. It returns 0 when no record
// exists or when the record fails integrity verification (the failure is
// logged and counted; the record is left untouched for operator repair).
func (l *Ledger) GetBalance(accountID string) int64 {
	rec, err := l.loadVerified(accountID)
	if err != nil {
		return 0
	}
	if rec == nil {
		return 0
	}
	return rec.Balance
}

// History returns the account's transaction history in insertion order.
// A record that fails integrity verification yields ErrIntegrityViolation.
func (l *Ledger) History(accountID string) ([]domain.Transaction, error) {
	rec, err := l.loadVerified(accountID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.History, nil
}

// VerifyIntegrity recomputes the account record's digest and compares it to
// the stored value. A missing record is vacuously intact. A mismatch is data
// corruption or tampering, not a recoverable error: the balance reads as 0
// until an operator repairs the record.
func (l *Ledger) VerifyIntegrity(accountID string) bool {
	rec, err := l.store.GetAccount(accountID)
	if err != nil {
		return err == domain.ErrAccountNotFound
	}
	return verifyDigest(l.secret, rec)
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// Credit appends a credit transaction and returns the new balance.
// When paymentHash is non-empty the credit is idempotent per hash: a second
// attempt for the same hash changes nothing and returns ErrDuplicateCredit
// with the current balance.
func (l *Ledger) Credit(accountID string, amount int64, reason, paymentHash string) (int64, error) {
	if err := validateMutation(accountID, amount); err != nil {
		return 0, err
	}

	lock := l.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if paymentHash != "" {
		credited, err := l.store.IsCredited(paymentHash)
		if err != nil {
			return 0, fmt.Errorf("credit %s: %w", accountID, err)
		}
		if credited {
			observability.DuplicateCredits.Inc()
			log.Printf("ledger: duplicate credit ignored account=%s payment_hash=%s", accountID, paymentHash)
			return l.GetBalance(accountID), domain.ErrDuplicateCredit
		}
	}

	balance, err := l.apply(accountID, domain.Transaction{
		Amount:      amount,
		Type:        domain.TxCredit,
		Reason:      reason,
		PaymentHash: paymentHash,
	})
	if err == domain.ErrDuplicateCredit {
		// Lost a race against another writer for the same hash.
		observability.DuplicateCredits.Inc()
		return l.GetBalance(accountID), err
	}
	return balance, err
}

// Debit appends a debit transaction if the balance covers it. It returns
// ok=false with the unchanged balance when credits are insufficient — a
// normal outcome, not an error. The check-then-act sequence runs under the
// account's write lock.
func (l *Ledger) Debit(accountID string, amount int64, reason, jobID string) (bool, int64, error) {
	if err := validateMutation(accountID, amount); err != nil {
		return false, 0, err
	}

	lock := l.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.loadVerified(accountID)
	if err != nil {
		return false, 0, err
	}
	var current int64
	if rec != nil {
		current = rec.Balance
	}
	if amount > current {
		observability.LedgerMutations.WithLabelValues(string(domain.TxDebit), "insufficient").Inc()
		return false, current, nil
	}

	balance, err := l.apply(accountID, domain.Transaction{
		Amount: amount,
		Type:   domain.TxDebit,
		Reason: reason,
		JobID:  jobID,
	})
	if err != nil {
		return false, current, err
	}
	return true, balance, nil
}

// Refund appends a refund transaction and returns the new balance. Refund is
// unconditional: it is the compensating action for a prior debit whose
// paid-for operation failed.
func (l *Ledger) Refund(accountID string, amount int64, reason, jobID string) (int64, error) {
	if err := validateMutation(accountID, amount); err != nil {
		return 0, err
	}

	lock := l.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	return l.apply(accountID, domain.Transaction{
		Amount: amount,
		Type:   domain.TxRefund,
		Reason: reason,
		JobID:  jobID,
	})
}

// ─── Internals ──────────────────────────────────────────────────────────────

// apply appends the transaction to the record, recomputes balance and
// digest, and persists atomically. Caller holds the account lock.
func (l *Ledger) apply(accountID string, tx domain.Transaction) (int64, error) {
	rec, err := l.loadVerified(accountID)
	if err != nil {
		return 0, err
	}

	now := l.clock.Now()
	var prevDigest string
	if rec == nil {
		rec = &domain.AccountRecord{AccountID: accountID}
	} else {
		prevDigest = rec.Digest
	}

	tx.ID = uuid.NewString()
	tx.Timestamp = now

	rec.History = append(rec.History, tx)
	rec.Balance += tx.Type.Signed(tx.Amount)
	rec.LastUpdated = now
	rec.Digest = ComputeDigest(l.secret, rec)

	if err := l.store.PutAccount(rec, prevDigest, tx.PaymentHash); err != nil {
		observability.LedgerMutations.WithLabelValues(string(tx.Type), "error").Inc()
		if err == domain.ErrDuplicateCredit || err == domain.ErrStoreConflict {
			return 0, err
		}
		return 0, fmt.Errorf("persist account %s: %w", accountID, err)
	}

	l.audit(domain.AuditEntry{
		AccountID:   accountID,
		Type:        tx.Type,
		Amount:      tx.Amount,
		Reason:      tx.Reason,
		PaymentHash: tx.PaymentHash,
		JobID:       tx.JobID,
		Timestamp:   now,
	})
	observability.LedgerMutations.WithLabelValues(string(tx.Type), "ok").Inc()
	return rec.Balance, nil
}

// loadVerified loads the record and verifies its digest. It returns
// (nil, nil) when no record exists, and ErrIntegrityViolation on mismatch.
func (l *Ledger) loadVerified(accountID string) (*domain.AccountRecord, error) {
	rec, err := l.store.GetAccount(accountID)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if !verifyDigest(l.secret, rec) {
		observability.IntegrityFailures.Inc()
		log.Printf("ledger: integrity verification failed account=%s (balance reads 0 until repaired)", accountID)
		return nil, domain.ErrIntegrityViolation
	}
	return rec, nil
}

// audit appends to the transaction log. Failures are non-fatal.
func (l *Ledger) audit(entry domain.AuditEntry) {
	if l.txlog == nil {
		return
	}
	if err := l.txlog.Append(entry); err != nil {
		observability.AuditLogFailures.Inc()
		log.Printf("ledger: audit log append failed account=%s: %v", entry.AccountID, err)
	}
}

func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	return lock
}

func validateMutation(accountID string, amount int64) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}
