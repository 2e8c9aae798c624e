package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// Money is an amount in integer minor units (cents). Negative values are
	// expenses by convention; the category's TreatAsIncome flag is the
	// authoritative classifier for reporting.
	Money struct {
		Cents int64
	}

	// Period is a YYYY-MM bucket key used by all time-grouped reports.
	Period string

	Category struct {
		ID               string    `db:"id" json:"id"`
		Name             string    `db:"name" json:"name"`
		Color            string    `db:"color" json:"color"`
		UserID           string    `db:"user_id" json:"userId"`
		TreatAsIncome    bool      `db:"treat_as_income" json:"treatAsIncome"`
		HideFromInsights bool      `db:"hide_from_insights" json:"hideFromInsights"`
		CreatedAt        time.Time `db:"created_at" json:"createdAt"`
		UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
	}

	Payee struct {
		ID         string   `db:"id" json:"id"`
		Name       string   `db:"name" json:"name"`
		UserID     string   `db:"user_id" json:"userId"`
		CategoryID *string  `db:"category_id" json:"categoryId,omitempty"`
		Keywords   []string `db:"-" json:"keywords"`
	}

	Transaction struct {
		ID            string    `db:"id" json:"id"`
		AmountCents   int64     `db:"amount" json:"amount"`
		Vendor        string    `db:"vendor" json:"vendor"`
		DisplayVendor *string   `db:"display_vendor" json:"displayVendor,omitempty"`
		Description   *string   `db:"description" json:"description,omitempty"`
		Date          time.Time `db:"date" json:"date"`
		Reviewed      bool      `db:"reviewed" json:"reviewed"`
		CategoryID    *string   `db:"category_id" json:"categoryId,omitempty"`
		PayeeID       *string   `db:"payee_id" json:"payeeId,omitempty"`
		ExternalID    *string   `db:"external_id" json:"externalId,omitempty"`
		UserID        string    `db:"user_id" json:"userId"`
		CreatedAt     time.Time `db:"created_at" json:"createdAt"`
		UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
	}

	// CategoryRef is the subset of category fields a list row carries.
	CategoryRef struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		Color            string `json:"color"`
		TreatAsIncome    bool   `json:"treatAsIncome"`
		HideFromInsights bool   `json:"hideFromInsights"`
	}

	// TransactionView is a list row joined with its category's display
	// metadata, the shape cached and previewed by the optimistic protocol.
	TransactionView struct {
		Transaction
		Category *CategoryRef `json:"category,omitempty"`
	}
)

var (
	ErrEmptyName     = errors.New("empty name")
	ErrEmptyVendor   = errors.New("empty vendor")
	ErrInvalidColor  = errors.New("color must start with '#'")
	ErrInvalidPeriod = errors.New("period must be YYYY-MM")
)

// NewID returns a time-ordered UUIDv7 string, falling back to a random v4
// when the monotonic source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// PeriodOf buckets a date into its YYYY-MM period.
func PeriodOf(t time.Time) Period {
	return Period(t.Format("2006-01"))
}

func (p Period) Validate() error {
	if _, err := time.Parse("2006-01", string(p)); err != nil {
		return ErrInvalidPeriod
	}
	return nil
}

// Time returns the first instant of the period in UTC.
func (p Period) Time() time.Time {
	t, _ := time.Parse("2006-01", string(p))
	return t
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if !strings.HasPrefix(c.Color, "#") {
		return ErrInvalidColor
	}
	return nil
}

func (p Payee) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Vendor) == "" {
		return ErrEmptyVendor
	}
	if t.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	if t.Description != nil && len(*t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

// Amount returns the transaction's amount as Money.
func (t Transaction) Amount() Money {
	return Money{Cents: t.AmountCents}
}

// IsExpense reports the sign convention; reporting must use the category's
// TreatAsIncome flag instead.
func (t Transaction) IsExpense() bool {
	return t.AmountCents < 0
}
