package http

import (
	"net/http"
	"strconv"
	"strings"

	"tallyo/internal/auth"
	"tallyo/internal/core"
	"tallyo/internal/storage"
)

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	if rows, found := s.breakdownCache.Get(userID); found {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	rows, err := s.reports.CategoryBreakdown(r.Context(), userID)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	if rows == nil {
		rows = []storage.CategoryBreakdownRow{}
	}
	s.breakdownCache.Set(userID, rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleIncomeVsExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	rows, err := s.reports.IncomeVsExpense(r.Context(), userID)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	if rows == nil {
		rows = []storage.IncomeVsExpenseRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMonthlyExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	months := 0
	if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeResult(w, core.Validationf("months", "must be between 1 and 60"), "")
			return
		}
		months = n
	}

	columns, err := s.reports.MonthlyExpenseMatrix(r.Context(), userID, months)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	if stats, found := s.statsCache.Get(userID); found {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := s.reports.Stats(r.Context(), userID)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	s.statsCache.Set(userID, stats)
	writeJSON(w, http.StatusOK, stats)
}

// invalidateReports drops a user's cached report projections after a write.
func (s *Server) invalidateReports(userID string) {
	s.statsCache.Delete(userID)
	s.breakdownCache.Delete(userID)
}
