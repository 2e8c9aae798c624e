package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tallyo/internal/core"
)

// Reporting projections. Every query excludes categories flagged
// hide_from_insights, sums integer cents, and buckets time by the YYYY-MM
// period key. Uncategorized transactions count as expenses with no category
// metadata, matching the left-join semantics of the transaction list.

// Dates are stored as ISO-8601 text, so the first seven characters are the
// YYYY-MM period key regardless of time-of-day precision.
const periodExpr = "substr(t.date, 1, 7)"

// CategoryBreakdownRow is one (category, period) cell of the breakdown.
type CategoryBreakdownRow struct {
	Name   *string     `db:"name" json:"name"`
	Color  *string     `db:"color" json:"color"`
	Period core.Period `db:"period" json:"period"`
	Amount int64       `db:"amount" json:"amount"`
	Count  int64       `db:"count" json:"count"`
}

// CategoryBreakdown groups the user's expense transactions by category and
// period. Income categories are excluded; this chart shows spending only.
func (r *SQLiteRepository) CategoryBreakdown(ctx context.Context, userID string) ([]CategoryBreakdownRow, error) {
	query, args, err := r.sb.Select(
		"c.name AS name",
		"c.color AS color",
		periodExpr+" AS period",
		"SUM(t.amount) AS amount",
		"COUNT(*) AS count").
		From("transactions t").
		LeftJoin("categories c ON c.id = t.category_id").
		Where(sq.Eq{"t.user_id": userID}).
		Where("COALESCE(c.treat_as_income, 0) = 0").
		Where("COALESCE(c.hide_from_insights, 0) = 0").
		GroupBy("c.id", periodExpr).
		OrderBy("period ASC", "amount ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build category breakdown: %w", err)
	}
	var rows []CategoryBreakdownRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	return rows, nil
}

// IncomeVsExpenseRow is one period of the income/expense series.
type IncomeVsExpenseRow struct {
	Period   core.Period `db:"period" json:"period"`
	Income   int64       `db:"income" json:"income"`
	Expenses int64       `db:"expenses" json:"expenses"`
}

// IncomeVsExpense sums each period's amounts into income (treat_as_income
// categories) and expense buckets.
func (r *SQLiteRepository) IncomeVsExpense(ctx context.Context, userID string) ([]IncomeVsExpenseRow, error) {
	query, args, err := r.sb.Select(
		periodExpr+" AS period",
		"COALESCE(SUM(CASE WHEN COALESCE(c.treat_as_income, 0) = 1 THEN t.amount ELSE 0 END), 0) AS income",
		"COALESCE(SUM(CASE WHEN COALESCE(c.treat_as_income, 0) = 0 THEN t.amount ELSE 0 END), 0) AS expenses").
		From("transactions t").
		LeftJoin("categories c ON c.id = t.category_id").
		Where(sq.Eq{"t.user_id": userID}).
		Where("COALESCE(c.hide_from_insights, 0) = 0").
		GroupBy(periodExpr).
		OrderBy("period ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build income vs expense: %w", err)
	}
	var rows []IncomeVsExpenseRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("income vs expense: %w", err)
	}
	return rows, nil
}

// MonthlyCategoryRow is one (category, period) cell used to assemble the
// monthly expense matrix.
type MonthlyCategoryRow struct {
	Category *string     `db:"category" json:"category"`
	Period   core.Period `db:"period" json:"period"`
	Amount   int64       `db:"amount" json:"amount"`
	IsIncome bool        `db:"is_income" json:"isIncome"`
}

// MonthlyCategoryAmounts groups amounts by (category, period, income flag)
// for periods at or after the since key. The service layer folds these into
// the per-month matrix with income/expense/net totals.
func (r *SQLiteRepository) MonthlyCategoryAmounts(ctx context.Context, userID string, since core.Period) ([]MonthlyCategoryRow, error) {
	query, args, err := r.sb.Select(
		"c.name AS category",
		periodExpr+" AS period",
		"SUM(t.amount) AS amount",
		"COALESCE(c.treat_as_income, 0) AS is_income").
		From("transactions t").
		LeftJoin("categories c ON c.id = t.category_id").
		Where(sq.Eq{"t.user_id": userID}).
		Where("COALESCE(c.hide_from_insights, 0) = 0").
		Where(periodExpr+" >= ?", string(since)).
		GroupBy("c.name", periodExpr, "COALESCE(c.treat_as_income, 0)").
		OrderBy("period ASC", "category ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build monthly category amounts: %w", err)
	}
	var rows []MonthlyCategoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("monthly category amounts: %w", err)
	}
	return rows, nil
}

// SummaryStats is the "stats for nerds" projection.
type SummaryStats struct {
	Count    int64 `db:"count" json:"count"`
	Income   int64 `db:"income" json:"income"`
	Expenses int64 `db:"expenses" json:"expenses"`
}

// Stats counts the user's non-hidden transactions and totals income and
// expenses as absolute cents.
func (r *SQLiteRepository) Stats(ctx context.Context, userID string) (SummaryStats, error) {
	query, args, err := r.sb.Select(
		"COUNT(*) AS count",
		"COALESCE(ABS(SUM(CASE WHEN COALESCE(c.treat_as_income, 0) = 1 THEN t.amount ELSE 0 END)), 0) AS income",
		"COALESCE(ABS(SUM(CASE WHEN COALESCE(c.treat_as_income, 0) = 0 THEN t.amount ELSE 0 END)), 0) AS expenses").
		From("transactions t").
		LeftJoin("categories c ON c.id = t.category_id").
		Where(sq.Eq{"t.user_id": userID}).
		Where("COALESCE(c.hide_from_insights, 0) = 0").
		ToSql()
	if err != nil {
		return SummaryStats{}, fmt.Errorf("build stats: %w", err)
	}
	var stats SummaryStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return SummaryStats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
