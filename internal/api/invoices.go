package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/payments"
)

// ─── Invoice Lifecycle ──────────────────────────────────────────────────────

type createInvoiceRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// handleCreateInvoice requests an invoice from the payment backend, records
// it in the reconciliation backlog, and starts a background watch that
// credits the account when the invoice settles.
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}

	invoice, hash, err := s.deps.Payments.CreateInvoice(r.Context(), req.Amount)
	if err != nil {
		writeError(w, http.StatusBadGateway, "payment backend: "+err.Error())
		return
	}

	now := s.clock.Now()
	inv := domain.PendingInvoice{
		AccountID:   req.AccountID,
		Invoice:     invoice,
		PaymentHash: hash,
		Amount:      req.Amount,
		State:       domain.InvoiceWaiting,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.deps.PaymentPoller.InvoiceTTL),
	}

	// Persist before watching: a crash between here and settlement leaves a
	// backlog entry for startup reconciliation.
	if s.deps.Backlog != nil {
		if err := s.deps.Backlog.AddPending(domain.PendingPayment{
			AccountID:   inv.AccountID,
			PaymentHash: inv.PaymentHash,
			Amount:      inv.Amount,
			Token:       uuid.NewString(),
			CreatedAt:   now,
		}); err != nil {
			log.Printf("api: persist pending payment payment_hash=%s: %v", hash, err)
		}
	}

	s.startWatch(inv)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"invoice":      inv.Invoice,
		"payment_hash": inv.PaymentHash,
		"amount":       inv.Amount,
		"state":        inv.State,
		"expires_at":   inv.ExpiresAt,
	})
}

// handleCancelInvoice stops the watch for an invoice. The backlog entry is
// kept: the payment may still have gone through, and reconciliation settles
// the uncertainty.
func (s *Server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	s.mu.Lock()
	cancel, ok := s.cancels[hash]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no active watch for payment hash")
		return
	}
	cancel()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_hash": hash,
		"state":        domain.InvoiceCanceled,
	})
}

// handleConfirmInvoice is the manual "I already paid" path. The claim is
// re-verified with the payment backend; an unsettled invoice stays waiting.
func (s *Server) handleConfirmInvoice(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	s.mu.Lock()
	inv, ok := s.pending[hash]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown payment hash")
		return
	}

	settled, err := s.poller.Confirm(r.Context(), inv)
	if err != nil {
		writeError(w, http.StatusBadGateway, "payment backend: "+err.Error())
		return
	}
	if !settled {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"payment_hash": hash,
			"state":        domain.InvoiceWaiting,
			"settled":      false,
		})
		return
	}

	s.stopWatch(hash)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_hash": hash,
		"state":        domain.InvoicePaid,
		"settled":      true,
		"balance":      s.deps.Ledger.GetBalance(inv.AccountID),
	})
}

// handleReconcile batch-verifies pending payments. A batch with any item
// missing its verification token is rejected wholesale before any network
// call; an empty body drains the persisted backlog instead.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []domain.PendingPayment `json:"items"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var result domain.ReconcileResult
	var err error
	if len(req.Items) == 0 {
		result, err = s.reconciler.ReconcileBacklog(r.Context())
	} else {
		result, err = s.reconciler.Reconcile(r.Context(), req.Items)
	}
	if err != nil {
		var batchErr *payments.BatchError
		if errors.As(err, &batchErr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": map[string]interface{}{
					"message":        "batch rejected: items missing verification token",
					"type":           "batch_rejected",
					"invalid_hashes": batchErr.InvalidHashes,
				},
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Settled == nil {
		result.Settled = []bool{}
	}
	if result.VerifiedHashes == nil {
		result.VerifiedHashes = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Watch Bookkeeping ──────────────────────────────────────────────────────

// startWatch registers the invoice and polls it in the background until it
// reaches a terminal state.
func (s *Server) startWatch(inv domain.PendingInvoice) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.pending[inv.PaymentHash] = inv
	s.cancels[inv.PaymentHash] = cancel
	s.mu.Unlock()

	go func() {
		defer s.stopWatch(inv.PaymentHash)
		state, err := s.poller.Watch(ctx, inv)
		if err != nil && !errors.Is(err, domain.ErrInvoiceExpired) && !errors.Is(err, domain.ErrInvoiceCanceled) {
			log.Printf("api: invoice watch payment_hash=%s: %v", inv.PaymentHash, err)
			return
		}
		log.Printf("api: invoice resolved payment_hash=%s state=%s", inv.PaymentHash, state)
	}()
}

// stopWatch cancels and forgets the invoice's watch.
func (s *Server) stopWatch(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[hash]; ok {
		cancel()
	}
	delete(s.cancels, hash)
	delete(s.pending, hash)
}
