package http

import (
	"net/http"

	"tallyo/internal/auth"
	"tallyo/internal/core"
	"tallyo/internal/log"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	cats, err := s.repo.ListCategories(r.Context(), userID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List categories failed", log.FieldError, err.Error(), log.FieldUserID, userID)
		writeResult(w, err, "")
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

type categoryRequest struct {
	Name             string `json:"name"`
	Color            string `json:"color"`
	TreatAsIncome    bool   `json:"treatAsIncome"`
	HideFromInsights bool   `json:"hideFromInsights"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}

	c := core.Category{
		ID:               core.NewID(),
		Name:             sanitizeInput(req.Name),
		Color:            sanitizeInput(req.Color),
		UserID:           userID,
		TreatAsIncome:    req.TreatAsIncome,
		HideFromInsights: req.HideFromInsights,
	}
	if err := c.Validate(); err != nil {
		writeResult(w, err, "")
		return
	}
	if err := s.repo.CreateCategory(r.Context(), c); err != nil {
		writeResult(w, err, "")
		return
	}
	s.invalidateReports(userID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeResult(w, err, "")
		return
	}

	c := core.Category{
		ID:               r.PathValue("id"),
		Name:             sanitizeInput(req.Name),
		Color:            sanitizeInput(req.Color),
		UserID:           userID,
		TreatAsIncome:    req.TreatAsIncome,
		HideFromInsights: req.HideFromInsights,
	}
	if err := c.Validate(); err != nil {
		writeResult(w, err, "")
		return
	}
	err := s.repo.UpdateCategory(r.Context(), c)
	if err == nil {
		s.invalidateReports(userID)
	}
	writeResult(w, err, "Category updated.")
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	err := s.repo.DeleteCategory(r.Context(), userID, r.PathValue("id"))
	if err == nil {
		s.invalidateReports(userID)
	}
	writeResult(w, err, "Category deleted.")
}
