package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/infra/observability"
	"github.com/satoshipuzzles/lumaledger/internal/ledger"
)

// ─── Pending Payment Reconciler ─────────────────────────────────────────────
// Batch verification of payments whose outcome is uncertain — persisted
// before a restart, or whose confirmation was missed. Run opportunistically
// (e.g. on startup) to close out the backlog.

// ReconcilerConfig controls per-item retry behavior.
type ReconcilerConfig struct {
	MaxAttempts int           // status re-queries per item
	BaseDelay   time.Duration // delay before the second attempt
	DelayStep   time.Duration // added per further attempt
}

// DefaultReconcilerConfig returns the reference timing:
// 10 attempts, delay 1000ms + attempt*500ms.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		DelayStep:   500 * time.Millisecond,
	}
}

// BatchError rejects a whole reconciliation batch before any network I/O.
type BatchError struct {
	// InvalidHashes names the offending items (payment hash, or the item
	// index when even that is missing).
	InvalidHashes []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%v: %d items missing verification token", domain.ErrBatchRejected, len(e.InvalidHashes))
}

func (e *BatchError) Unwrap() error { return domain.ErrBatchRejected }

// Reconciler batch-verifies pending payments against the payment backend.
type Reconciler struct {
	backend domain.PaymentBackend
	ledger  *ledger.Ledger
	backlog domain.BacklogStore // optional
	clock   domain.Clock
	cfg     ReconcilerConfig
}

// NewReconciler creates a reconciler.
func NewReconciler(backend domain.PaymentBackend, l *ledger.Ledger, backlog domain.BacklogStore, clock domain.Clock, cfg ReconcilerConfig) *Reconciler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Reconciler{backend: backend, ledger: l, backlog: backlog, clock: clock, cfg: cfg}
}

// Reconcile verifies each item's settlement, crediting confirmed payments
// idempotently. Settled[i] reports the i-th item; VerifiedHashes lists the
// hashes confirmed paid so the caller can close them out of a future batch.
//
// Every item must carry its verification token tying it to the account; a
// batch with any tokenless item is rejected wholesale, before any network
// call, to keep a forged reconciliation request from crediting an arbitrary
// account.
func (r *Reconciler) Reconcile(ctx context.Context, items []domain.PendingPayment) (domain.ReconcileResult, error) {
	if invalid := validateBatch(items); len(invalid) > 0 {
		observability.ReconcilerBatchRejections.Inc()
		return domain.ReconcileResult{}, &BatchError{InvalidHashes: invalid}
	}

	result := domain.ReconcileResult{Settled: make([]bool, len(items))}
	for i, item := range items {
		settled, err := r.verifyItem(ctx, item)
		if err != nil {
			// Context cancellation aborts the batch with partial results.
			return result, err
		}
		result.Settled[i] = settled
		if settled {
			result.VerifiedHashes = append(result.VerifiedHashes, item.PaymentHash)
			observability.ReconcilerItems.WithLabelValues("verified").Inc()
		} else {
			observability.ReconcilerItems.WithLabelValues("unverified").Inc()
			log.Printf("reconciler: %v payment_hash=%s after %d attempts",
				domain.ErrPaymentUnverified, item.PaymentHash, r.cfg.MaxAttempts)
		}
	}
	return result, nil
}

// ReconcileBacklog loads the persisted backlog and reconciles it.
// Intended for the startup flow.
func (r *Reconciler) ReconcileBacklog(ctx context.Context) (domain.ReconcileResult, error) {
	if r.backlog == nil {
		return domain.ReconcileResult{}, nil
	}
	items, err := r.backlog.ListPending()
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("load backlog: %w", err)
	}
	if len(items) == 0 {
		return domain.ReconcileResult{}, nil
	}
	log.Printf("reconciler: verifying %d pending payments", len(items))
	return r.Reconcile(ctx, items)
}

// verifyItem re-queries payment status with increasing delay between
// attempts. On confirmation it performs the same idempotent credit as the
// payment poller and closes the backlog entry.
func (r *Reconciler) verifyItem(ctx context.Context, item domain.PendingPayment) (bool, error) {
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.cfg.BaseDelay + time.Duration(attempt)*r.cfg.DelayStep
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-r.clock.After(delay):
			}
		}

		paid, err := r.backend.CheckPayment(ctx, item.PaymentHash)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			observability.PaymentChecks.WithLabelValues("error").Inc()
			continue
		}
		if !paid {
			observability.PaymentChecks.WithLabelValues("unpaid").Inc()
			continue
		}

		observability.PaymentChecks.WithLabelValues("paid").Inc()
		_, err = r.ledger.Credit(item.AccountID, item.Amount, "invoice:"+item.PaymentHash, item.PaymentHash)
		if err != nil && !errors.Is(err, domain.ErrDuplicateCredit) {
			return false, err
		}
		if r.backlog != nil {
			if err := r.backlog.ClosePending(item.PaymentHash, domain.InvoicePaid); err != nil {
				log.Printf("reconciler: close backlog entry payment_hash=%s: %v", item.PaymentHash, err)
			}
		}
		return true, nil
	}
	return false, nil
}

// validateBatch returns identifiers of items missing their verification
// token or account association.
func validateBatch(items []domain.PendingPayment) []string {
	var invalid []string
	for i, item := range items {
		if item.Token == "" || item.AccountID == "" || item.PaymentHash == "" {
			name := item.PaymentHash
			if name == "" {
				name = fmt.Sprintf("item[%d]", i)
			}
			invalid = append(invalid, name)
		}
	}
	return invalid
}
