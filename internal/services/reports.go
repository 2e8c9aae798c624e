package services

import (
	"context"
	"sort"
	"time"

	"tallyo/internal/core"
	"tallyo/internal/storage"
)

// ReportService derives read-only view models from the transaction table.
// All amounts stay integer cents until the client formats them.
type ReportService struct {
	repo *storage.SQLiteRepository
}

func NewReportService(repo *storage.SQLiteRepository) *ReportService {
	return &ReportService{repo: repo}
}

func (s *ReportService) CategoryBreakdown(ctx context.Context, userID string) ([]storage.CategoryBreakdownRow, error) {
	return s.repo.CategoryBreakdown(ctx, userID)
}

func (s *ReportService) IncomeVsExpense(ctx context.Context, userID string) ([]storage.IncomeVsExpenseRow, error) {
	return s.repo.IncomeVsExpense(ctx, userID)
}

func (s *ReportService) Stats(ctx context.Context, userID string) (storage.SummaryStats, error) {
	return s.repo.Stats(ctx, userID)
}

// DefaultMatrixMonths is how many trailing months the expense matrix covers
// when the client does not say.
const DefaultMatrixMonths = 2

// MonthColumn is one month of the expense matrix: per-category expense
// amounts plus the month's computed totals.
type MonthColumn struct {
	Period     core.Period      `json:"period"`
	Categories map[string]int64 `json:"categories"`
	Income     int64            `json:"income"`
	Expenses   int64            `json:"expenses"`
	Net        int64            `json:"net"`
}

// MonthlyExpenseMatrix folds the grouped (category, period) amounts of the
// last months periods into one column per month, newest last. Every column
// is present even when the month has no transactions.
func (s *ReportService) MonthlyExpenseMatrix(ctx context.Context, userID string, months int) ([]MonthColumn, error) {
	if months <= 0 {
		months = DefaultMatrixMonths
	}

	now := time.Now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	since := core.PeriodOf(first)

	rows, err := s.repo.MonthlyCategoryAmounts(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	columns := make(map[core.Period]*MonthColumn, months)
	for i := 0; i < months; i++ {
		p := core.PeriodOf(first.AddDate(0, i, 0))
		columns[p] = &MonthColumn{Period: p, Categories: make(map[string]int64)}
	}

	for _, row := range rows {
		col, ok := columns[row.Period]
		if !ok {
			continue // row newer than "now" or outside the window
		}
		if row.IsIncome {
			col.Income += row.Amount
		} else {
			col.Expenses += row.Amount
			name := "Uncategorized"
			if row.Category != nil {
				name = *row.Category
			}
			col.Categories[name] += row.Amount
		}
	}

	out := make([]MonthColumn, 0, len(columns))
	for _, col := range columns {
		col.Net = col.Income + col.Expenses
		out = append(out, *col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}
