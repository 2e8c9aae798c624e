package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"tallyo/internal/core"
)

var transactionColumns = []string{
	"id", "amount", "vendor", "display_vendor", "description", "date",
	"reviewed", "category_id", "payee_id", "external_id", "user_id",
	"created_at", "updated_at",
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	query, args, err := r.sb.Insert("transactions").
		Columns(transactionColumns[:11]...).
		Values(t.ID, t.AmountCents, t.Vendor, t.DisplayVendor, t.Description,
			t.Date.UTC(), t.Reviewed, t.CategoryID, t.PayeeID, t.ExternalID, t.UserID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert transaction: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return core.TranslateConstraint(err)
	}
	slog.InfoContext(ctx, "Transaction created",
		"id", t.ID, "vendor", t.Vendor, "amount_cents", t.AmountCents)
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error) {
	query, args, err := r.sb.Select(transactionColumns...).
		From("transactions").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get transaction: %w", err)
	}
	var t core.Transaction
	if err := r.db.GetContext(ctx, &t, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

type transactionRow struct {
	core.Transaction
	CatID               *string `db:"cat_id"`
	CatName             *string `db:"cat_name"`
	CatColor            *string `db:"cat_color"`
	CatTreatAsIncome    *bool   `db:"cat_treat_as_income"`
	CatHideFromInsights *bool   `db:"cat_hide_from_insights"`
}

// ListTransactions returns the user's list rows joined with category display
// metadata, unreviewed first, then newest. limit <= 0 means no limit.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]core.TransactionView, error) {
	b := r.sb.Select(
		"t.id", "t.amount", "t.vendor", "t.display_vendor", "t.description",
		"t.date", "t.reviewed", "t.category_id", "t.payee_id", "t.external_id",
		"t.user_id", "t.created_at", "t.updated_at",
		"c.id AS cat_id", "c.name AS cat_name", "c.color AS cat_color",
		"c.treat_as_income AS cat_treat_as_income",
		"c.hide_from_insights AS cat_hide_from_insights").
		From("transactions t").
		LeftJoin("categories c ON c.id = t.category_id").
		Where(sq.Eq{"t.user_id": userID}).
		OrderBy("t.reviewed ASC", "t.date DESC", "t.created_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list transactions: %w", err)
	}

	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	views := make([]core.TransactionView, len(rows))
	for i, row := range rows {
		views[i] = core.TransactionView{Transaction: row.Transaction}
		if row.CatID != nil {
			views[i].Category = &core.CategoryRef{
				ID:               *row.CatID,
				Name:             derefStr(row.CatName),
				Color:            derefStr(row.CatColor),
				TreatAsIncome:    derefBool(row.CatTreatAsIncome),
				HideFromInsights: derefBool(row.CatHideFromInsights),
			}
		}
	}
	return views, nil
}

func (r *SQLiteRepository) UnreviewedCount(ctx context.Context, userID string) (int64, error) {
	query, args, err := r.sb.Select("COUNT(*)").
		From("transactions").
		Where(sq.Eq{"user_id": userID, "reviewed": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build unreviewed count: %w", err)
	}
	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("unreviewed count: %w", err)
	}
	return count, nil
}

// ApplyMutation applies a single-field transaction mutation scoped to
// (id, user id). A mutation that matches no row reports core.ErrNotFound
// instead of succeeding silently.
func (r *SQLiteRepository) ApplyMutation(ctx context.Context, userID string, m core.Mutation) error {
	b := r.sb.Update("transactions").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": m.TransactionID(), "user_id": userID})

	switch mut := m.(type) {
	case core.SetCategory:
		b = b.Set("category_id", mut.CategoryID)
	case core.SetReviewed:
		b = b.Set("reviewed", mut.Reviewed)
	case core.SetDescription:
		b = b.Set("description", mut.Description)
	case core.SetDisplayVendor:
		b = b.Set("display_vendor", mut.DisplayVendor)
	default:
		return fmt.Errorf("unknown mutation type %T", m)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build mutation: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.TranslateConstraint(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Split divides one transaction into two whose amounts sum to the original.
// The original row keeps its identity with amount = secondAmount; a cloned
// row is inserted with amount = firstAmount. Both writes run in one database
// transaction so a partial split is never visible.
func (r *SQLiteRepository) Split(ctx context.Context, userID, id string, firstAmount, secondAmount int64) (*core.Transaction, error) {
	orig, err := r.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if firstAmount+secondAmount != orig.AmountCents {
		return nil, core.ErrInvalidSplitAmount
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin split: %w", err)
	}
	defer tx.Rollback()

	clone := *orig
	clone.ID = core.NewID()
	clone.AmountCents = firstAmount
	clone.ExternalID = deriveSplitExternalID(orig.ExternalID)
	now := time.Now().UTC()
	clone.CreatedAt = now
	clone.UpdatedAt = now

	insert, args, err := r.sb.Insert("transactions").
		Columns(transactionColumns[:11]...).
		Values(clone.ID, clone.AmountCents, clone.Vendor, clone.DisplayVendor,
			clone.Description, clone.Date.UTC(), clone.Reviewed, clone.CategoryID,
			clone.PayeeID, clone.ExternalID, clone.UserID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build split insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("split insert: %w", core.TranslateConstraint(err))
	}

	update, args, err := r.sb.Update("transactions").
		Set("amount", secondAmount).
		Set("updated_at", now).
		Where(sq.Eq{"id": orig.ID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build split update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, fmt.Errorf("split update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit split: %w", err)
	}

	slog.InfoContext(ctx, "Transaction split",
		"id", orig.ID, "new_id", clone.ID,
		"first_cents", firstAmount, "second_cents", secondAmount)
	return &clone, nil
}

// deriveSplitExternalID suffixes the original external id so the clone does
// not collide with the (external_id, user_id) uniqueness constraint. A nil
// external id stays nil; NULLs are exempt from the constraint.
func deriveSplitExternalID(orig *string) *string {
	if orig == nil {
		return nil
	}
	derived := *orig + "-split-" + core.NewID()[:8]
	return &derived
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	query, args, err := r.sb.Delete("transactions").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete transaction: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// SuggestCategoryForVendor returns the user's most frequently used category
// for the exact vendor string, or nil when the vendor has no categorized
// history. Ties break toward the most recently used category, then by id,
// so the result never depends on database iteration order.
func (r *SQLiteRepository) SuggestCategoryForVendor(ctx context.Context, userID, vendor string) (*string, error) {
	query, args, err := r.sb.Select("category_id").
		From("transactions").
		Where(sq.Eq{"user_id": userID, "vendor": vendor}).
		Where(sq.NotEq{"category_id": nil}).
		GroupBy("category_id").
		OrderBy("COUNT(*) DESC", "MAX(date) DESC", "category_id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build suggestion: %w", err)
	}
	var categoryID string
	if err := r.db.GetContext(ctx, &categoryID, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("suggest category: %w", err)
	}
	return &categoryID, nil
}

// ImportRecord is one row of a bulk external import.
type ImportRecord struct {
	Date       time.Time
	Vendor     string
	Amount     int64
	ExternalID string
}

// BulkImport inserts the records for the user with fresh ids, silently
// skipping rows that collide on (external_id, user_id). Replaying the same
// payload is therefore idempotent. Returns the number of rows inserted.
func (r *SQLiteRepository) BulkImport(ctx context.Context, userID string, records []ImportRecord) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for _, rec := range records {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transactions (id, amount, vendor, date, external_id, user_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			core.NewID(), rec.Amount, rec.Vendor, rec.Date.UTC(), rec.ExternalID, userID)
		if err != nil {
			return 0, fmt.Errorf("import row %q: %w", rec.ExternalID, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	slog.InfoContext(ctx, "Bulk import finished",
		"received", len(records), "inserted", inserted)
	return inserted, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	return b != nil && *b
}
