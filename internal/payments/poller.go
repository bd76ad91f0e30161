package payments

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/infra/observability"
	"github.com/satoshipuzzles/lumaledger/internal/ledger"
)

// ─── Payment Poller ─────────────────────────────────────────────────────────
// One poller instance watches exactly one invoice:
//
//	Created → Waiting → {Paid | Expired | Canceled}
//
// Individual status-check failures do not transition state; they are retried
// on the next tick until the wall-clock deadline. Paid triggers exactly one
// ledger credit per payment hash (the ledger's idempotency guard enforces
// the "exactly once"). Cancellation stops the watch: a late-arriving paid
// result is never applied after cancellation is requested.

// PollerConfig controls watch timing.
type PollerConfig struct {
	Interval   time.Duration // delay between status checks
	InvoiceTTL time.Duration // wall-clock deadline from invoice creation
}

// DefaultPollerConfig returns the reference timing: 5s interval, 10m TTL.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:   5 * time.Second,
		InvoiceTTL: 10 * time.Minute,
	}
}

// Poller watches pending invoices and credits the ledger on settlement.
type Poller struct {
	backend domain.PaymentBackend
	ledger  *ledger.Ledger
	backlog domain.BacklogStore // optional; closed out on terminal states
	clock   domain.Clock
	cfg     PollerConfig
}

// NewPoller creates a payment poller.
func NewPoller(backend domain.PaymentBackend, l *ledger.Ledger, backlog domain.BacklogStore, clock domain.Clock, cfg PollerConfig) *Poller {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Poller{backend: backend, ledger: l, backlog: backlog, clock: clock, cfg: cfg}
}

// Watch drives the invoice to a terminal state and returns it.
// Expired and Canceled are reported with their sentinel errors; Paid returns
// a nil error after the ledger credit has been applied.
func (p *Poller) Watch(ctx context.Context, inv domain.PendingInvoice) (domain.InvoiceState, error) {
	deadline := inv.ExpiresAt
	if deadline.IsZero() {
		deadline = p.clock.Now().Add(p.cfg.InvoiceTTL)
	}

	for {
		if ctx.Err() != nil {
			return p.finish(inv, domain.InvoiceCanceled), domain.ErrInvoiceCanceled
		}

		paid, err := p.backend.CheckPayment(ctx, inv.PaymentHash)
		switch {
		case err != nil:
			// Transient: no new information this tick.
			observability.PaymentChecks.WithLabelValues("error").Inc()
			log.Printf("payments: status check failed payment_hash=%s: %v", inv.PaymentHash, err)
		case paid:
			observability.PaymentChecks.WithLabelValues("paid").Inc()
			// Never apply a late result after cancellation was requested.
			if ctx.Err() != nil {
				return p.finish(inv, domain.InvoiceCanceled), domain.ErrInvoiceCanceled
			}
			if err := p.settle(inv); err != nil {
				return domain.InvoiceWaiting, err
			}
			return p.finish(inv, domain.InvoicePaid), nil
		default:
			observability.PaymentChecks.WithLabelValues("unpaid").Inc()
		}

		if !p.clock.Now().Before(deadline) {
			return p.finish(inv, domain.InvoiceExpired), domain.ErrInvoiceExpired
		}

		select {
		case <-ctx.Done():
			return p.finish(inv, domain.InvoiceCanceled), domain.ErrInvoiceCanceled
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}

// Confirm is the manual "I already paid" path. It re-verifies with the
// payment backend before crediting — a client assertion alone never credits
// the account. It returns true once the invoice is settled and credited.
func (p *Poller) Confirm(ctx context.Context, inv domain.PendingInvoice) (bool, error) {
	paid, err := p.backend.CheckPayment(ctx, inv.PaymentHash)
	if err != nil {
		return false, err
	}
	if !paid {
		return false, nil
	}
	if err := p.settle(inv); err != nil {
		return false, err
	}
	p.finish(inv, domain.InvoicePaid)
	return true, nil
}

// settle applies the idempotent ledger credit for a settled invoice.
// A duplicate is fine: the invoice was already credited by another path.
func (p *Poller) settle(inv domain.PendingInvoice) error {
	_, err := p.ledger.Credit(inv.AccountID, inv.Amount, "invoice:"+inv.PaymentHash, inv.PaymentHash)
	if err != nil && !errors.Is(err, domain.ErrDuplicateCredit) {
		return err
	}
	return nil
}

// finish records the terminal state and closes the backlog entry.
// A canceled invoice stays in the backlog: the user may have paid after
// closing the dialog, and startup reconciliation settles the uncertainty.
func (p *Poller) finish(inv domain.PendingInvoice, state domain.InvoiceState) domain.InvoiceState {
	observability.InvoicesSettled.WithLabelValues(string(state)).Inc()
	if p.backlog != nil && state != domain.InvoiceCanceled {
		if err := p.backlog.ClosePending(inv.PaymentHash, state); err != nil {
			log.Printf("payments: close backlog entry payment_hash=%s: %v", inv.PaymentHash, err)
		}
	}
	return state
}
