package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
)

// ─── Ledger Queries ─────────────────────────────────────────────────────────

// handleBalance returns the account's current balance.
// A corrupt record reads as 0, same as the ledger itself reports it.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"balance":    s.deps.Ledger.GetBalance(accountID),
	})
}

// handleTransactions returns the account's ledger history, oldest first.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}

	history, err := s.deps.Ledger.History(accountID)
	if err != nil {
		if errors.Is(err, domain.ErrIntegrityViolation) {
			writeError(w, http.StatusConflict, "account record failed integrity verification")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if history == nil {
		history = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":   accountID,
		"transactions": history,
	})
}

// handleAudit returns the append-only audit log for the account.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	if s.deps.TxLog == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"account_id": accountID,
			"entries":    []domain.AuditEntry{},
		})
		return
	}
	entries, err := s.deps.TxLog.List(accountID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"entries":    entries,
	})
}

// handleVerify recomputes the account record's integrity digest.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"intact":     s.deps.Ledger.VerifyIntegrity(accountID),
	})
}
