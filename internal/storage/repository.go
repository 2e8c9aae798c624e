// Package storage implements the SQLite persistence layer: entity CRUD, the
// transaction mutation and split operations, the vendor-history suggestion
// aggregation, idempotent bulk import, and the reporting projections.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"tallyo/internal/core"

	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers itself as "sqlite"; sqlx does not know its bindvar
	// style out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type SQLiteRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewSQLiteRepository opens (creating directories as needed) and migrates
// the database at dbPath. Pass ":memory:" for an ephemeral database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// _time_format=sqlite makes the driver write time.Time values as
	// SQLite-compatible ISO-8601 text, which the period bucketing relies on.
	db, err := sqlx.Open("sqlite", dbPath+"?_time_format=sqlite&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY and keeps :memory: databases
	// on one handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Ping verifies the database connection, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// -- users, sessions, tokens --

type User struct {
	ID    string  `db:"id"`
	Name  *string `db:"name"`
	Email string  `db:"email"`
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u User) error {
	query, args, err := r.sb.Insert("users").
		Columns("id", "name", "email").
		Values(u.ID, u.Name, u.Email).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create user: %w", core.TranslateConstraint(err))
	}
	return nil
}

// UserBySessionToken resolves a live session token to its user id. Expired
// or unknown tokens yield core.ErrNotAuthenticated.
func (r *SQLiteRepository) UserBySessionToken(ctx context.Context, token string) (string, error) {
	query, args, err := r.sb.Select("user_id", "expires_at").
		From("sessions").
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build session lookup: %w", err)
	}
	var row struct {
		UserID    string    `db:"user_id"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.ErrNotAuthenticated
		}
		return "", fmt.Errorf("session lookup: %w", err)
	}
	if time.Now().After(row.ExpiresAt) {
		return "", core.ErrNotAuthenticated
	}
	return row.UserID, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error {
	query, args, err := r.sb.Insert("sessions").
		Columns("id", "token", "user_id", "expires_at").
		Values(core.NewID(), token, userID, expiresAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UserByAPIToken resolves a bulk-import bearer token to its user id.
func (r *SQLiteRepository) UserByAPIToken(ctx context.Context, token string) (string, error) {
	query, args, err := r.sb.Select("user_id").
		From("api_tokens").
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build token lookup: %w", err)
	}
	var userID string
	if err := r.db.GetContext(ctx, &userID, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.ErrNotAuthenticated
		}
		return "", fmt.Errorf("token lookup: %w", err)
	}
	return userID, nil
}

func (r *SQLiteRepository) CreateAPIToken(ctx context.Context, userID, token string) error {
	query, args, err := r.sb.Insert("api_tokens").
		Columns("id", "token", "user_id").
		Values(core.NewID(), token, userID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert api token: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}

// -- categories --

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	query, args, err := r.sb.Insert("categories").
		Columns("id", "name", "color", "user_id", "treat_as_income", "hide_from_insights").
		Values(c.ID, c.Name, c.Color, c.UserID, c.TreatAsIncome, c.HideFromInsights).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert category: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return core.TranslateConstraint(err)
	}
	slog.InfoContext(ctx, "Category created", "id", c.ID, "name", c.Name)
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	query, args, err := r.sb.
		Select("id", "name", "color", "user_id", "treat_as_income", "hide_from_insights", "created_at", "updated_at").
		From("categories").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list categories: %w", err)
	}
	var cats []core.Category
	if err := r.db.SelectContext(ctx, &cats, query, args...); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (*core.Category, error) {
	query, args, err := r.sb.
		Select("id", "name", "color", "user_id", "treat_as_income", "hide_from_insights", "created_at", "updated_at").
		From("categories").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get category: %w", err)
	}
	var c core.Category
	if err := r.db.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// UpdateCategory edits a category's name, color and reporting flags.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	query, args, err := r.sb.Update("categories").
		Set("name", c.Name).
		Set("color", c.Color).
		Set("treat_as_income", c.TreatAsIncome).
		Set("hide_from_insights", c.HideFromInsights).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": c.ID, "user_id": c.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update category: %w", err)
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

// DeleteCategory removes the category; referencing transactions fall back to
// NULL (uncategorized) through the schema's ON DELETE SET NULL, never get
// deleted themselves.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	query, args, err := r.sb.Delete("categories").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete category: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

// -- payees --

func (r *SQLiteRepository) CreatePayee(ctx context.Context, p core.Payee) error {
	query, args, err := r.sb.Insert("payees").
		Columns("id", "name", "user_id", "category_id").
		Values(p.ID, p.Name, p.UserID, p.CategoryID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert payee: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return core.TranslateConstraint(err)
	}
	return nil
}

func (r *SQLiteRepository) ListPayees(ctx context.Context, userID string) ([]core.Payee, error) {
	query, args, err := r.sb.Select("id", "name", "user_id", "category_id").
		From("payees").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list payees: %w", err)
	}
	var payees []core.Payee
	if err := r.db.SelectContext(ctx, &payees, query, args...); err != nil {
		return nil, fmt.Errorf("list payees: %w", err)
	}
	for i := range payees {
		kws, err := r.payeeKeywords(ctx, payees[i].ID)
		if err != nil {
			return nil, err
		}
		payees[i].Keywords = kws
	}
	return payees, nil
}

func (r *SQLiteRepository) GetPayee(ctx context.Context, userID, id string) (*core.Payee, error) {
	query, args, err := r.sb.Select("id", "name", "user_id", "category_id").
		From("payees").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get payee: %w", err)
	}
	var p core.Payee
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get payee: %w", err)
	}
	kws, err := r.payeeKeywords(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Keywords = kws
	return &p, nil
}

func (r *SQLiteRepository) payeeKeywords(ctx context.Context, payeeID string) ([]string, error) {
	query, args, err := r.sb.Select("keyword").
		From("payee_keywords").
		Where(sq.Eq{"payee_id": payeeID}).
		OrderBy("keyword ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payee keywords: %w", err)
	}
	var kws []string
	if err := r.db.SelectContext(ctx, &kws, query, args...); err != nil {
		return nil, fmt.Errorf("payee keywords: %w", err)
	}
	return kws, nil
}

// AddPayeeKeyword attaches a match/autocomplete keyword to a payee. Adding a
// keyword the payee already has is a no-op.
func (r *SQLiteRepository) AddPayeeKeyword(ctx context.Context, userID, payeeID, keyword string) error {
	if _, err := r.GetPayee(ctx, userID, payeeID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO payee_keywords (id, payee_id, keyword) VALUES (?, ?, ?)",
		core.NewID(), payeeID, keyword)
	if err != nil {
		return fmt.Errorf("add payee keyword: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "Payee keyword already present", "payee_id", payeeID, "keyword", keyword)
	}
	return nil
}

func (r *SQLiteRepository) RemovePayeeKeyword(ctx context.Context, userID, payeeID, keyword string) error {
	if _, err := r.GetPayee(ctx, userID, payeeID); err != nil {
		return err
	}
	query, args, err := r.sb.Delete("payee_keywords").
		Where(sq.Eq{"payee_id": payeeID, "keyword": keyword}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove payee keyword: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("remove payee keyword: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}
