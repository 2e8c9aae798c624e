package http

import (
	"net/http"

	"tallyo/internal/auth"
	"tallyo/internal/core"
)

func (s *Server) handleListPayees(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	payees, err := s.repo.ListPayees(r.Context(), userID)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	if payees == nil {
		payees = []core.Payee{}
	}
	writeJSON(w, http.StatusOK, payees)
}

func (s *Server) handleCreatePayee(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req struct {
		Name       string  `json:"name"`
		CategoryID *string `json:"categoryId,omitempty"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}

	p := core.Payee{
		ID:         core.NewID(),
		Name:       sanitizeInput(req.Name),
		UserID:     userID,
		CategoryID: req.CategoryID,
	}
	if err := p.Validate(); err != nil {
		writeResult(w, err, "")
		return
	}
	if err := s.repo.CreatePayee(r.Context(), p); err != nil {
		writeResult(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPayee(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	p, err := s.repo.GetPayee(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeResult(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddPayeeKeyword(w http.ResponseWriter, r *http.Request) {
	userID, keyword, ok := s.payeeKeywordParams(w, r)
	if !ok {
		return
	}
	writeResult(w, s.repo.AddPayeeKeyword(r.Context(), userID, r.PathValue("id"), keyword), "Keyword added.")
}

func (s *Server) handleRemovePayeeKeyword(w http.ResponseWriter, r *http.Request) {
	userID, keyword, ok := s.payeeKeywordParams(w, r)
	if !ok {
		return
	}
	writeResult(w, s.repo.RemovePayeeKeyword(r.Context(), userID, r.PathValue("id"), keyword), "Keyword removed.")
}

func (s *Server) payeeKeywordParams(w http.ResponseWriter, r *http.Request) (userID, keyword string, ok bool) {
	userID, _ = auth.UserID(r.Context())

	var req struct {
		Keyword string `json:"keyword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return "", "", false
	}
	keyword = sanitizeInput(req.Keyword)
	if keyword == "" {
		writeResult(w, core.Validationf("keyword", "required"), "")
		return "", "", false
	}
	return userID, keyword, true
}
