package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/ledger"
)

func newTestReconciler(t *testing.T, backend domain.PaymentBackend, cfg ReconcilerConfig) (*Reconciler, *ledger.Ledger, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	l := ledger.New(store, []byte("secret"), ledger.Options{})
	return NewReconciler(backend, l, store, domain.SystemClock{}, cfg), l, store
}

func fastReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, DelayStep: time.Millisecond}
}

func pendingItem(hash, token string) domain.PendingPayment {
	return domain.PendingPayment{AccountID: "A", PaymentHash: hash, Amount: 1000, Token: token}
}

func TestReconcile_RejectsBatchMissingToken(t *testing.T) {
	backend := &fakeBackend{script: []checkResult{{paid: true}}}
	r, l, _ := newTestReconciler(t, backend, fastReconcilerConfig())

	items := []domain.PendingPayment{
		pendingItem("H1", "tok-1"),
		pendingItem("H2", ""), // missing verification token
		pendingItem("H3", "tok-3"),
	}

	_, err := r.Reconcile(context.Background(), items)
	if !errors.Is(err, domain.ErrBatchRejected) {
		t.Fatalf("err = %v, want ErrBatchRejected", err)
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("err = %T, want *BatchError", err)
	}
	if len(batchErr.InvalidHashes) != 1 || batchErr.InvalidHashes[0] != "H2" {
		t.Errorf("InvalidHashes = %v, want [H2]", batchErr.InvalidHashes)
	}

	if backend.callCount() != 0 {
		t.Errorf("network calls = %d, want 0 (rejected before any I/O)", backend.callCount())
	}
	if got := l.GetBalance("A"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestReconcile_ConfirmsAfterRetries(t *testing.T) {
	backend := &fakeBackend{script: []checkResult{
		{err: errNetwork},
		{paid: false},
		{paid: true},
	}}
	r, l, store := newTestReconciler(t, backend, fastReconcilerConfig())
	store.AddPending(pendingItem("H1", "tok"))

	result, err := r.Reconcile(context.Background(), []domain.PendingPayment{pendingItem("H1", "tok")})
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(result.Settled) != 1 || !result.Settled[0] {
		t.Errorf("Settled = %v, want [true]", result.Settled)
	}
	if len(result.VerifiedHashes) != 1 || result.VerifiedHashes[0] != "H1" {
		t.Errorf("VerifiedHashes = %v, want [H1]", result.VerifiedHashes)
	}
	if got := l.GetBalance("A"); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}

	pending, _ := store.ListPending()
	if len(pending) != 0 {
		t.Errorf("backlog entries = %d, want 0 after confirmation", len(pending))
	}
}

func TestReconcile_ExhaustsRetries(t *testing.T) {
	backend := &fakeBackend{script: []checkResult{{paid: false}}}
	r, l, _ := newTestReconciler(t, backend, fastReconcilerConfig())

	result, err := r.Reconcile(context.Background(), []domain.PendingPayment{pendingItem("H1", "tok")})
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if result.Settled[0] {
		t.Error("item should remain unverified after exhausting retries")
	}
	if len(result.VerifiedHashes) != 0 {
		t.Errorf("VerifiedHashes = %v, want empty", result.VerifiedHashes)
	}
	if backend.callCount() != 3 {
		t.Errorf("attempts = %d, want 3", backend.callCount())
	}
	if got := l.GetBalance("A"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestReconcile_DuplicateCreditIsIdempotent(t *testing.T) {
	backend := &fakeBackend{script: []checkResult{{paid: true}}}
	r, l, _ := newTestReconciler(t, backend, fastReconcilerConfig())

	// Already credited through the live poller path.
	if _, err := l.Credit("A", 1000, "invoice:H1", "H1"); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}

	result, err := r.Reconcile(context.Background(), []domain.PendingPayment{pendingItem("H1", "tok")})
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if !result.Settled[0] {
		t.Error("already-credited payment should still report settled")
	}
	if got := l.GetBalance("A"); got != 1000 {
		t.Errorf("balance = %d, want 1000 (credited exactly once)", got)
	}
}

func TestReconcile_MixedBatch(t *testing.T) {
	// H-paid settles immediately; H-unpaid never does.
	backend := &scriptedPerHash{responses: map[string]bool{"H-paid": true, "H-unpaid": false}}
	r, _, _ := newTestReconciler(t, backend, fastReconcilerConfig())

	result, err := r.Reconcile(context.Background(), []domain.PendingPayment{
		pendingItem("H-paid", "tok"),
		pendingItem("H-unpaid", "tok"),
	})
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := []bool{true, false}
	for i := range want {
		if result.Settled[i] != want[i] {
			t.Errorf("Settled[%d] = %v, want %v", i, result.Settled[i], want[i])
		}
	}
}

func TestReconcileBacklog_DrainsPersistedItems(t *testing.T) {
	backend := &fakeBackend{script: []checkResult{{paid: true}}}
	r, l, store := newTestReconciler(t, backend, fastReconcilerConfig())

	store.AddPending(pendingItem("H1", "tok"))

	result, err := r.ReconcileBacklog(context.Background())
	if err != nil {
		t.Fatalf("ReconcileBacklog() error: %v", err)
	}
	if len(result.VerifiedHashes) != 1 {
		t.Errorf("VerifiedHashes = %v, want one entry", result.VerifiedHashes)
	}
	if got := l.GetBalance("A"); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}

	pending, _ := store.ListPending()
	if len(pending) != 0 {
		t.Errorf("backlog entries = %d, want 0 after drain", len(pending))
	}
}

func TestReconcile_CancellationAbortsBatch(t *testing.T) {
	backend := &fakeBackend{script: []checkResult{{paid: false}}}
	r, _, _ := newTestReconciler(t, backend, ReconcilerConfig{
		MaxAttempts: 10, BaseDelay: time.Hour, DelayStep: 0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Reconcile(ctx, []domain.PendingPayment{pendingItem("H1", "tok")})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// scriptedPerHash answers CheckPayment per payment hash.
type scriptedPerHash struct {
	responses map[string]bool
}

func (s *scriptedPerHash) CreateInvoice(ctx context.Context, amount int64) (string, string, error) {
	return "inv", "hash", nil
}

func (s *scriptedPerHash) CheckPayment(ctx context.Context, paymentHash string) (bool, error) {
	return s.responses[paymentHash], nil
}
