package http

import (
	"net/http"
	"strconv"
	"strings"

	"tallyo/internal/auth"
	"tallyo/internal/core"
	"tallyo/internal/log"
	"tallyo/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	limit := s.listLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeResult(w, core.Validationf("limit", "must be a non-negative integer"), "")
			return
		}
		limit = n
	}

	rows, err := s.transactions.List(r.Context(), userID, limit)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "List transactions failed",
			log.FieldError, err.Error(), log.FieldUserID, userID)
		writeResult(w, err, "")
		return
	}
	if rows == nil {
		rows = []core.TransactionView{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUnreviewedCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	count, err := s.transactions.UnreviewedCount(r.Context(), userID)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

type createTransactionRequest struct {
	Date          string  `json:"date"`
	Vendor        string  `json:"vendor"`
	Amount        int64   `json:"amount"`
	DisplayVendor *string `json:"displayVendor,omitempty"`
	Description   *string `json:"description,omitempty"`
	CategoryID    *string `json:"categoryId,omitempty"`
	ExternalID    *string `json:"externalId,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}

	date, err := services.ParseDate(req.Date)
	if err != nil {
		writeResult(w, err, "")
		return
	}

	t := core.Transaction{
		AmountCents:   req.Amount,
		Vendor:        sanitizeInput(req.Vendor),
		DisplayVendor: req.DisplayVendor,
		Description:   req.Description,
		Date:          date,
		CategoryID:    req.CategoryID,
		ExternalID:    req.ExternalID,
	}

	created, err := s.transactions.Create(r.Context(), userID, t)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	s.invalidateReports(userID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID *string `json:"categoryId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}
	s.applyMutation(w, r, core.SetCategory{ID: r.PathValue("id"), CategoryID: req.CategoryID}, "Category updated.")
}

func (s *Server) handleSetReviewed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reviewed bool `json:"reviewed"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}
	s.applyMutation(w, r, core.SetReviewed{ID: r.PathValue("id"), Reviewed: req.Reviewed}, "Reviewed state updated.")
}

func (s *Server) handleSetDescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}
	s.applyMutation(w, r, core.SetDescription{ID: r.PathValue("id"), Description: sanitizeInput(req.Description)}, "Description updated.")
}

func (s *Server) handleSetDisplayVendor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayVendor string `json:"displayVendor"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}
	s.applyMutation(w, r, core.SetDisplayVendor{ID: r.PathValue("id"), DisplayVendor: sanitizeInput(req.DisplayVendor)}, "Vendor name updated.")
}

func (s *Server) applyMutation(w http.ResponseWriter, r *http.Request, m core.Mutation, okMessage string) {
	userID, _ := auth.UserID(r.Context())
	err := s.transactions.Apply(r.Context(), userID, m)
	if err == nil {
		s.invalidateReports(userID)
		s.structured.LogMutationApplied(r.Context(), m.TransactionID(), mutationKind(m))
	}
	writeResult(w, err, okMessage)
}

func mutationKind(m core.Mutation) string {
	switch m.(type) {
	case core.SetCategory:
		return "category"
	case core.SetReviewed:
		return "reviewed"
	case core.SetDescription:
		return "description"
	case core.SetDisplayVendor:
		return "display_vendor"
	default:
		return "unknown"
	}
}

type splitResponse struct {
	core.Result
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req struct {
		FirstAmount  int64 `json:"firstAmount"`
		SecondAmount int64 `json:"secondAmount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}

	clone, err := s.transactions.Split(r.Context(), userID, r.PathValue("id"), req.FirstAmount, req.SecondAmount)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	s.invalidateReports(userID)
	writeJSON(w, http.StatusOK, splitResponse{
		Result:      core.Result{OK: true, Message: "Transaction split."},
		Transaction: clone,
	})
}

func (s *Server) handleSuggestCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	categoryID, err := s.transactions.SuggestCategory(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeResult(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*string{"categoryId": categoryID})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	err := s.transactions.Delete(r.Context(), userID, r.PathValue("id"))
	if err == nil {
		s.invalidateReports(userID)
	}
	writeResult(w, err, "Transaction deleted.")
}
