// Package observability holds the Prometheus metrics for the credit ledger
// and the payment/generation pollers. Metrics are package-level promauto
// collectors registered on the default registry and exposed through the
// /metrics endpoint when enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerMutations counts ledger mutations by type and result.
var LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "ledger",
	Name:      "mutations_total",
	Help:      "Total ledger mutations by transaction type and result.",
}, []string{"type", "result"})

// IntegrityFailures counts records that failed digest verification.
var IntegrityFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "ledger",
	Name:      "integrity_failures_total",
	Help:      "Total account records that failed integrity verification.",
})

// DuplicateCredits counts credit attempts rejected by the idempotency guard.
var DuplicateCredits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "ledger",
	Name:      "duplicate_credits_total",
	Help:      "Total credit attempts rejected because the payment hash was already credited.",
})

// AuditLogFailures counts failed audit-log appends (non-fatal).
var AuditLogFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "ledger",
	Name:      "audit_log_failures_total",
	Help:      "Total failed transaction audit log appends.",
})

// ─── Payment Metrics ────────────────────────────────────────────────────────

// PaymentChecks counts payment status checks by outcome.
var PaymentChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "payments",
	Name:      "status_checks_total",
	Help:      "Total payment status checks by outcome (paid, unpaid, error).",
}, []string{"outcome"})

// InvoicesSettled counts invoices by terminal state.
var InvoicesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "payments",
	Name:      "invoices_total",
	Help:      "Total invoices by terminal state (paid, expired, canceled).",
}, []string{"state"})

// ReconcilerItems counts reconciliation items by outcome.
var ReconcilerItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "reconciler",
	Name:      "items_total",
	Help:      "Total reconciliation items by outcome (verified, unverified).",
}, []string{"outcome"})

// ReconcilerBatchRejections counts batches rejected before any network I/O.
var ReconcilerBatchRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "reconciler",
	Name:      "batch_rejections_total",
	Help:      "Total reconciliation batches rejected for missing verification tokens.",
})

// ─── Generation Metrics ─────────────────────────────────────────────────────

// GenerationPolls counts generation status polls by reported state.
var GenerationPolls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "generation",
	Name:      "status_polls_total",
	Help:      "Total generation status polls by reported state.",
}, []string{"state"})

// AssetProbeFailures counts failed asset reachability probes.
var AssetProbeFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "generation",
	Name:      "asset_probe_failures_total",
	Help:      "Total failed asset reachability probe attempts.",
})

// JobsFinished counts generation jobs by terminal state.
var JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumaledger",
	Subsystem: "generation",
	Name:      "jobs_total",
	Help:      "Total generation jobs by terminal state (completed, failed).",
}, []string{"state"})
