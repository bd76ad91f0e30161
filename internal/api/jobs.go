package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
)

// ─── Generation Jobs ────────────────────────────────────────────────────────

type generateRequest struct {
	AccountID string         `json:"account_id"`
	Prompt    string         `json:"prompt"`
	Options   map[string]any `json:"options,omitempty"`
}

// handleGenerate debits the generation price, submits the job, and tracks
// it in the background. A failed submission or a failed job refunds the
// debit; insufficient credits reject the request before any provider call.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	price := s.deps.PriceCredits
	ok, balance, err := s.deps.Ledger.Debit(req.AccountID, price, "generation", "")
	if err != nil {
		if errors.Is(err, domain.ErrIntegrityViolation) {
			writeError(w, http.StatusConflict, "account record failed integrity verification")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "insufficient credits",
				"type":    "insufficient_credits",
			},
			"balance":  balance,
			"required": price,
		})
		return
	}

	job, err := s.deps.Generation.Submit(r.Context(), domain.GenerationRequest{
		Prompt:  req.Prompt,
		Options: req.Options,
	})
	if err != nil {
		s.refund(req.AccountID, price, "generation submit failed", "")
		writeError(w, http.StatusBadGateway, "generation backend: "+err.Error())
		return
	}

	job.AccountID = req.AccountID
	job.CreatedAt = s.clock.Now()
	if s.deps.Jobs != nil {
		if err := s.deps.Jobs.PutJob(job); err != nil {
			log.Printf("api: persist job %s: %v", job.ID, err)
		}
	}
	s.trackJob(job, price)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job":     job,
		"balance": balance,
	})
}

// handleGetJob returns the tracked job record.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.deps.Jobs == nil {
		writeError(w, http.StatusNotFound, "job tracking is not enabled")
		return
	}
	job, err := s.deps.Jobs.GetJob(id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "unknown job id")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// trackJob polls the job to completion in the background, refunding the
// debit when the job fails.
func (s *Server) trackJob(job domain.GenerationJob, price int64) {
	go func() {
		final, err := s.genPoller.Watch(context.Background(), job)
		if err != nil {
			log.Printf("api: job watch %s: %v", job.ID, err)
			return
		}
		if final.State == domain.JobFailed {
			s.refund(job.AccountID, price, "generation failed", job.ID)
		}
	}()
}

// refund compensates a debit whose paid-for operation failed.
func (s *Server) refund(accountID string, amount int64, reason, jobID string) {
	if _, err := s.deps.Ledger.Refund(accountID, amount, reason, jobID); err != nil {
		log.Printf("api: refund account=%s amount=%d: %v", accountID, amount, err)
	}
}
