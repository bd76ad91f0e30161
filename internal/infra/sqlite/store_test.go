package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/ledger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(accountID string, balance int64, digest string) *domain.AccountRecord {
	return &domain.AccountRecord{
		AccountID:   accountID,
		Balance:     balance,
		LastUpdated: time.Now(),
		History: []domain.Transaction{
			{ID: "t1", Amount: balance, Type: domain.TxCredit, Reason: "topup", Timestamp: time.Now()},
		},
		Digest: digest,
	}
}

// ─── Account Record Tests ───────────────────────────────────────────────────

func TestGetAccount_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetAccount("nobody"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestPutAccount_Roundtrip(t *testing.T) {
	db := newTestDB(t)
	rec := testRecord("A", 2000, "d1")

	if err := db.PutAccount(rec, "", ""); err != nil {
		t.Fatalf("PutAccount() error: %v", err)
	}
	got, err := db.GetAccount("A")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if got.Balance != 2000 || got.Digest != "d1" || len(got.History) != 1 {
		t.Errorf("roundtrip = %+v", got)
	}
}

func TestPutAccount_CompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	if err := db.PutAccount(testRecord("A", 2000, "d1"), "", ""); err != nil {
		t.Fatalf("initial PutAccount() error: %v", err)
	}

	// Stale previous digest must not overwrite.
	err := db.PutAccount(testRecord("A", 9999, "d2"), "stale", "")
	if !errors.Is(err, domain.ErrStoreConflict) {
		t.Errorf("err = %v, want ErrStoreConflict", err)
	}
	got, _ := db.GetAccount("A")
	if got.Balance != 2000 {
		t.Errorf("balance after rejected write = %d, want 2000", got.Balance)
	}

	// Matching previous digest succeeds.
	if err := db.PutAccount(testRecord("A", 3000, "d2"), "d1", ""); err != nil {
		t.Fatalf("PutAccount() with matching digest error: %v", err)
	}
	got, _ = db.GetAccount("A")
	if got.Balance != 3000 {
		t.Errorf("balance = %d, want 3000", got.Balance)
	}
}

func TestPutAccount_DuplicateCreditHash(t *testing.T) {
	db := newTestDB(t)
	if err := db.PutAccount(testRecord("A", 2000, "d1"), "", "H1"); err != nil {
		t.Fatalf("PutAccount() error: %v", err)
	}

	credited, err := db.IsCredited("H1")
	if err != nil || !credited {
		t.Errorf("IsCredited(H1) = (%v, %v), want (true, nil)", credited, err)
	}

	// Same hash again: nothing changes, including the record.
	err = db.PutAccount(testRecord("A", 4000, "d2"), "d1", "H1")
	if !errors.Is(err, domain.ErrDuplicateCredit) {
		t.Errorf("err = %v, want ErrDuplicateCredit", err)
	}
	got, _ := db.GetAccount("A")
	if got.Balance != 2000 {
		t.Errorf("balance after duplicate credit write = %d, want 2000 (atomic rejection)", got.Balance)
	}
}

// ─── Ledger-over-SQLite Tests ───────────────────────────────────────────────

func TestLedgerScenario_OverSQLite(t *testing.T) {
	db := newTestDB(t)
	l := ledger.New(db, []byte("secret"), ledger.Options{TxLog: db})

	if _, err := l.Credit("A", 2000, "invoice:H1", "H1"); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	ok, bal, err := l.Debit("A", 2000, "job", "J1")
	if err != nil || !ok || bal != 0 {
		t.Fatalf("Debit() = (%v, %d, %v), want (true, 0, nil)", ok, bal, err)
	}
	if bal, err = l.Refund("A", 2000, "job failed", "J1"); err != nil || bal != 2000 {
		t.Fatalf("Refund() = (%d, %v), want (2000, nil)", bal, err)
	}
	if !l.VerifyIntegrity("A") {
		t.Error("record written through the ledger should verify")
	}

	entries, err := db.List("A", 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("audit entries = %d, want 3", len(entries))
	}

	// Tamper with the persisted JSON out-of-band: integrity must fail.
	if _, err := db.db.Exec(
		`UPDATE accounts SET record_json = replace(record_json, '"balance":2000', '"balance":9999') WHERE account_id = 'A'`,
	); err != nil {
		t.Fatalf("tamper update error: %v", err)
	}
	if l.VerifyIntegrity("A") {
		t.Error("VerifyIntegrity should fail after out-of-band edit")
	}
	if got := l.GetBalance("A"); got != 0 {
		t.Errorf("GetBalance on tampered record = %d, want 0", got)
	}
}

func TestAuditList_Limit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		db.Append(domain.AuditEntry{
			AccountID: "A", Type: domain.TxCredit, Amount: int64(i + 1),
			Reason: "topup", Timestamp: time.Now(),
		})
	}

	entries, err := db.List("A", 2)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest two, oldest first.
	if entries[0].Amount != 4 || entries[1].Amount != 5 {
		t.Errorf("amounts = %d,%d, want 4,5", entries[0].Amount, entries[1].Amount)
	}
}

// ─── Backlog Tests ──────────────────────────────────────────────────────────

func TestBacklog_AddCloseList(t *testing.T) {
	db := newTestDB(t)

	db.AddPending(domain.PendingPayment{AccountID: "A", PaymentHash: "H1", Amount: 1000, Token: "tok", CreatedAt: time.Now()})
	db.AddPending(domain.PendingPayment{AccountID: "A", PaymentHash: "H2", Amount: 2000, Token: "tok", CreatedAt: time.Now()})

	pending, err := db.ListPending()
	if err != nil {
		t.Fatalf("ListPending() error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := db.ClosePending("H1", domain.InvoicePaid); err != nil {
		t.Fatalf("ClosePending() error: %v", err)
	}
	pending, _ = db.ListPending()
	if len(pending) != 1 || pending[0].PaymentHash != "H2" {
		t.Errorf("pending after close = %+v, want only H2", pending)
	}

	// Closing is idempotent and sticky.
	if err := db.ClosePending("H1", domain.InvoiceExpired); err != nil {
		t.Fatalf("second ClosePending() error: %v", err)
	}
}

func TestBacklog_AddIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	p := domain.PendingPayment{AccountID: "A", PaymentHash: "H1", Amount: 1000, Token: "tok", CreatedAt: time.Now()}
	db.AddPending(p)
	db.AddPending(p)

	pending, _ := db.ListPending()
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1 (duplicate adds collapse)", len(pending))
	}
}

// ─── Job Tests ──────────────────────────────────────────────────────────────

func TestJobs_PutGet(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.GetJob("nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}

	job := domain.GenerationJob{ID: "gen-1", AccountID: "A", State: domain.JobQueued, CreatedAt: time.Now()}
	if err := db.PutJob(job); err != nil {
		t.Fatalf("PutJob() error: %v", err)
	}

	job.State = domain.JobCompleted
	job.AssetURL = "https://cdn/v.mp4"
	job.UpdatedAt = time.Now()
	if err := db.PutJob(job); err != nil {
		t.Fatalf("PutJob() update error: %v", err)
	}

	got, err := db.GetJob("gen-1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.State != domain.JobCompleted || got.AssetURL != "https://cdn/v.mp4" {
		t.Errorf("GetJob() = %+v", got)
	}
}
