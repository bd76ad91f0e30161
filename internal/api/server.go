// Package api exposes the local HTTP API the browser client talks to:
// balance and history queries, invoice lifecycle, reconciliation, and
// generation jobs.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/generation"
	"github.com/satoshipuzzles/lumaledger/internal/ledger"
	"github.com/satoshipuzzles/lumaledger/internal/payments"
)

// Deps wires the server's collaborators.
type Deps struct {
	Ledger     *ledger.Ledger
	Payments   domain.PaymentBackend
	Generation domain.GenerationBackend
	Prober     domain.AssetProber
	TxLog      domain.TransactionLog
	Backlog    domain.BacklogStore
	Jobs       domain.JobStore
	Clock      domain.Clock

	PaymentPoller    payments.PollerConfig
	Reconciler       payments.ReconcilerConfig
	GenerationPoller generation.PollerConfig

	// PriceCredits is debited per generation.
	PriceCredits int64
}

// Server is the lumaledger HTTP API server.
type Server struct {
	deps       Deps
	clock      domain.Clock
	poller     *payments.Poller
	reconciler *payments.Reconciler
	genPoller  *generation.Poller

	metricsEnabled bool

	mu      sync.Mutex
	pending map[string]domain.PendingInvoice // by payment hash, while watched
	cancels map[string]context.CancelFunc    // active invoice watches
}

// NewServer creates the API server and its pollers.
func NewServer(deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Server{
		deps:       deps,
		clock:      clock,
		poller:     payments.NewPoller(deps.Payments, deps.Ledger, deps.Backlog, clock, deps.PaymentPoller),
		reconciler: payments.NewReconciler(deps.Payments, deps.Ledger, deps.Backlog, clock, deps.Reconciler),
		genPoller:  generation.NewPoller(deps.Generation, deps.Prober, deps.Jobs, clock, deps.GenerationPoller),
		pending:    make(map[string]domain.PendingInvoice),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Reconciler returns the reconciler (for the startup backlog drain).
func (s *Server) Reconciler() *payments.Reconciler { return s.reconciler }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/balance", s.handleBalance)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/audit", s.handleAudit)
		r.Get("/verify", s.handleVerify)

		r.Post("/invoice", s.handleCreateInvoice)
		r.Post("/invoice/{hash}/cancel", s.handleCancelInvoice)
		r.Post("/invoice/{hash}/confirm", s.handleConfirmInvoice)
		r.Post("/reconcile", s.handleReconcile)

		r.Post("/generate", s.handleGenerate)
		r.Get("/jobs/{id}", s.handleGetJob)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for the browser client.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
