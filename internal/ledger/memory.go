package ledger

import (
	"sync"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
)

// ─── In-Memory Store ────────────────────────────────────────────────────────
// MemoryStore is a process-local implementation of the persistence
// interfaces. It backs tests and ephemeral runs; durable deployments use
// the sqlite store. Copy-on-read/write keeps callers from aliasing the
// stored record.

// MemoryStore implements domain.LedgerStore, domain.BacklogStore and
// domain.JobStore in memory.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]domain.AccountRecord
	credited map[string]struct{}
	backlog  map[string]domain.PendingPayment
	jobs     map[string]domain.GenerationJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]domain.AccountRecord),
		credited: make(map[string]struct{}),
		backlog:  make(map[string]domain.PendingPayment),
		jobs:     make(map[string]domain.GenerationJob),
	}
}

// GetAccount returns a copy of the stored record.
func (s *MemoryStore) GetAccount(accountID string) (*domain.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := rec
	out.History = append([]domain.Transaction(nil), rec.History...)
	return &out, nil
}

// PutAccount replaces the record, enforcing compare-and-swap on the previous
// digest and atomically recording the credited payment hash when given.
func (s *MemoryStore) PutAccount(rec *domain.AccountRecord, previousDigest, creditHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var currentDigest string
	if current, ok := s.accounts[rec.AccountID]; ok {
		currentDigest = current.Digest
	}
	if currentDigest != previousDigest {
		return domain.ErrStoreConflict
	}
	if creditHash != "" {
		if _, ok := s.credited[creditHash]; ok {
			return domain.ErrDuplicateCredit
		}
		s.credited[creditHash] = struct{}{}
	}

	stored := *rec
	stored.History = append([]domain.Transaction(nil), rec.History...)
	s.accounts[rec.AccountID] = stored
	return nil
}

// IsCredited reports whether the payment hash is in the credited set.
func (s *MemoryStore) IsCredited(paymentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.credited[paymentHash]
	return ok, nil
}

// Corrupt mutates a stored record outside the ledger's write path.
// Test hook for integrity verification.
func (s *MemoryStore) Corrupt(accountID string, mutate func(*domain.AccountRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.accounts[accountID]
	if !ok {
		return
	}
	mutate(&rec)
	s.accounts[accountID] = rec
}

// ─── Backlog ────────────────────────────────────────────────────────────────

// AddPending records a payment whose settlement outcome is uncertain.
func (s *MemoryStore) AddPending(p domain.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog[p.PaymentHash] = p
	return nil
}

// ClosePending removes a payment from the backlog.
func (s *MemoryStore) ClosePending(paymentHash string, state domain.InvoiceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backlog, paymentHash)
	return nil
}

// ListPending returns the open backlog.
func (s *MemoryStore) ListPending() ([]domain.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingPayment, 0, len(s.backlog))
	for _, p := range s.backlog {
		out = append(out, p)
	}
	return out, nil
}

// ─── Jobs ───────────────────────────────────────────────────────────────────

// PutJob stores or replaces a job record.
func (s *MemoryStore) PutJob(job domain.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetJob returns a copy of the stored job, or ErrJobNotFound.
func (s *MemoryStore) GetJob(id string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := job
	return &out, nil
}

// ─── In-Memory Audit Log ────────────────────────────────────────────────────

// MemoryLog implements domain.TransactionLog in memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	failErr error // when set, Append fails (test hook)
}

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// Append records an audit entry.
func (m *MemoryLog) Append(entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

// List returns up to limit entries for the account, newest last.
func (m *MemoryLog) List(accountID string, limit int) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// FailWith makes subsequent appends fail. Test hook for the non-fatal
// audit-log failure path.
func (m *MemoryLog) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}
