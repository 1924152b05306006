package api

import (
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/loyalty/internal/award"
	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/reconcile"
	"github.com/roach88/loyalty/internal/store"
)

// AwardResponse is the award endpoint's body for success and failure.
type AwardResponse struct {
	Success    bool   `json:"success"`
	CardID     string `json:"cardId"`
	NewBalance int64  `json:"newBalance"`
	Duplicate  bool   `json:"duplicate"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

// awardStatus maps award error codes to HTTP status codes.
var awardStatus = map[award.Code]int{
	award.CodeInvalidRequest:      http.StatusBadRequest,
	award.CodeInvalidAmount:       http.StatusUnprocessableEntity,
	award.CodeEnrollmentRequired:  http.StatusConflict,
	award.CodeIdempotencyMismatch: http.StatusConflict,
	award.CodeConcurrencyConflict: http.StatusServiceUnavailable,
	award.CodePersistenceFailure:  http.StatusInternalServerError,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req ledger.AwardRequest
	if err := decodeBody(w, r, &req); err != nil {
		JSON(w, http.StatusBadRequest, AwardResponse{
			Error:   string(award.CodeInvalidRequest),
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}

	res, err := s.awarder.Award(r.Context(), req)
	if err != nil {
		code := award.CodeOf(err)
		status, ok := awardStatus[code]
		if !ok {
			code, status = award.CodePersistenceFailure, http.StatusInternalServerError
		}
		if code == award.CodeConcurrencyConflict {
			w.Header().Set("Retry-After", "1")
		}
		JSON(w, status, AwardResponse{
			Error:   string(code),
			Message: award.PublicMessage(err),
		})
		return
	}

	JSON(w, http.StatusOK, AwardResponse{
		Success:    res.Success,
		CardID:     res.CardID,
		NewBalance: res.NewBalance,
		Duplicate:  res.Duplicate,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	programID := chi.URLParam(r, "programID")

	bal, err := s.reader.Balance(r.Context(), customerID, programID)
	if errors.Is(err, reconcile.ErrCardNotFound) {
		Error(w, http.StatusNotFound, "CardNotFound", "no active card for this customer and program")
		return
	}
	if err != nil {
		s.logger.Error("balance read failed", "customer_id", customerID, "program_id", programID, "error", err)
		Error(w, http.StatusInternalServerError, "InternalError", "failed to read balance")
		return
	}
	JSON(w, http.StatusOK, bal)
}

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	limit := defaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "InvalidRequest", "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	card, err := s.ledger.GetCard(r.Context(), cardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			Error(w, http.StatusNotFound, "CardNotFound", "card not found")
			return
		}
		s.logger.Error("card read failed", "card_id", cardID, "error", err)
		Error(w, http.StatusInternalServerError, "InternalError", "failed to read card")
		return
	}

	acts, err := s.ledger.ListActivity(r.Context(), cardID, limit)
	if err != nil {
		s.logger.Error("activity read failed", "card_id", cardID, "error", err)
		Error(w, http.StatusInternalServerError, "InternalError", "failed to read activity")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"card": card, "activities": acts})
}

type enrollRequest struct {
	CustomerID string `json:"customerId"`
	ProgramID  string `json:"programId"`
	BusinessID string `json:"businessId"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body: "+err.Error())
		return
	}
	if missing := missingFields(map[string]string{
		"customerId": req.CustomerID,
		"programId":  req.ProgramID,
		"businessId": req.BusinessID,
	}); missing != "" {
		Error(w, http.StatusBadRequest, "InvalidRequest", "missing "+missing)
		return
	}

	enr, err := s.ledger.Enroll(r.Context(), ledger.Enrollment{
		CustomerID: req.CustomerID,
		ProgramID:  req.ProgramID,
		BusinessID: req.BusinessID,
		EnrolledAt: s.clock.Now(),
	})
	if errors.Is(err, store.ErrBusinessMismatch) {
		Error(w, http.StatusConflict, "BusinessMismatch", "customer is enrolled in this program under a different business")
		return
	}
	if err != nil {
		s.logger.Error("enroll failed", "customer_id", req.CustomerID, "program_id", req.ProgramID, "error", err)
		Error(w, http.StatusInternalServerError, "InternalError", "failed to enroll")
		return
	}
	JSON(w, http.StatusOK, enr)
}

type statusRequest struct {
	CustomerID string `json:"customerId"`
	ProgramID  string `json:"programId"`
	Status     string `json:"status"`
}

func (s *Server) handleEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body: "+err.Error())
		return
	}
	if missing := missingFields(map[string]string{
		"customerId": req.CustomerID,
		"programId":  req.ProgramID,
	}); missing != "" {
		Error(w, http.StatusBadRequest, "InvalidRequest", "missing "+missing)
		return
	}

	status := ledger.EnrollmentStatus(strings.ToLower(req.Status))
	if status != ledger.EnrollmentActive && status != ledger.EnrollmentInactive {
		Error(w, http.StatusBadRequest, "InvalidRequest", `status must be "active" or "inactive"`)
		return
	}

	err := s.ledger.SetEnrollmentStatus(r.Context(), req.CustomerID, req.ProgramID, status, s.clock.Now())
	if errors.Is(err, sql.ErrNoRows) {
		Error(w, http.StatusNotFound, "EnrollmentNotFound", "enrollment not found")
		return
	}
	if err != nil {
		s.logger.Error("set enrollment status failed", "customer_id", req.CustomerID, "program_id", req.ProgramID, "error", err)
		Error(w, http.StatusInternalServerError, "InternalError", "failed to update enrollment")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"customerId": req.CustomerID,
		"programId":  req.ProgramID,
		"status":     string(status),
	})
}

// missingFields returns the sorted, comma-separated names of empty fields.
func missingFields(fields map[string]string) string {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)
	return strings.Join(missing, ", ")
}
