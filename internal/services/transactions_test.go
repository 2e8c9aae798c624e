package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tallyo/internal/core"
	"tallyo/internal/events"
	"tallyo/internal/storage"
)

type capturingPublisher struct {
	messages []*events.ChangeMessage
	fail     bool
}

func (p *capturingPublisher) PublishChange(_ context.Context, msg *events.ChangeMessage) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func newFixture(t *testing.T) (*storage.SQLiteRepository, *capturingPublisher, string) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(":memory:")
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	userID := core.NewID()
	if err := repo.CreateUser(context.Background(), storage.User{ID: userID, Email: "a@example.com"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return repo, &capturingPublisher{}, userID
}

func TestTransactionServiceCreateAndApply(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewTransactionService(repo, pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, user, core.Transaction{
		AmountCents: -1299,
		Vendor:      "MARKET",
		Date:        time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("create must assign an id")
	}

	if err := svc.Apply(ctx, user, core.SetReviewed{ID: created.ID, Reviewed: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(pub.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.messages))
	}
	if pub.messages[0].Kind != events.KindCreated || pub.messages[1].Kind != events.KindUpdated {
		t.Errorf("kinds = %s, %s", pub.messages[0].Kind, pub.messages[1].Kind)
	}

	t.Run("invalid transaction rejected before storage", func(t *testing.T) {
		if _, err := svc.Create(ctx, user, core.Transaction{Vendor: " "}); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("publish failure does not fail the write", func(t *testing.T) {
		pub.fail = true
		if err := svc.Apply(ctx, user, core.SetReviewed{ID: created.ID, Reviewed: false}); err != nil {
			t.Fatalf("apply with failing publisher: %v", err)
		}
	})
}

func TestTransactionServiceSplit(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewTransactionService(repo, pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, user, core.Transaction{
		AmountCents: -5000,
		Vendor:      "MARKET",
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pub.messages = nil

	if _, err := svc.Split(ctx, user, created.ID, -1000, -1000); !errors.Is(err, core.ErrInvalidSplitAmount) {
		t.Fatalf("mismatched split: expected ErrInvalidSplitAmount, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Error("rejected split must not publish")
	}

	clone, err := svc.Split(ctx, user, created.ID, -1500, -3500)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if clone.AmountCents != -1500 {
		t.Errorf("clone amount = %d", clone.AmountCents)
	}
	if len(pub.messages) != 1 || pub.messages[0].Kind != events.KindSplit {
		t.Errorf("messages = %+v", pub.messages)
	}
}

func TestSuggestCategoryUnknownTransaction(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewTransactionService(repo, pub)

	// Unknown source transaction yields a nil suggestion, not an error.
	got, err := svc.SuggestCategory(context.Background(), user, "missing")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if got != nil {
		t.Errorf("suggestion = %v, want nil", *got)
	}
}

func TestSuggestCategoryUsesVendorHistory(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewTransactionService(repo, pub)
	ctx := context.Background()

	cat := core.Category{ID: core.NewID(), Name: "Groceries", Color: "#ee7662", UserID: user}
	if err := repo.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, user, core.Transaction{
			AmountCents: -100,
			Vendor:      "MARKET",
			Date:        time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
			CategoryID:  &cat.ID,
		}); err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}
	fresh, err := svc.Create(ctx, user, core.Transaction{
		AmountCents: -100,
		Vendor:      "MARKET",
		Date:        time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.SuggestCategory(ctx, user, fresh.ID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if got == nil || *got != cat.ID {
		t.Errorf("suggestion = %v, want %s", got, cat.ID)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2024-03-14", true},
		{"2024-03-14T12:30:00Z", true},
		{"14/03/2024", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, err := ParseDate(tt.in); (err == nil) != tt.ok {
			t.Errorf("ParseDate(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
		}
	}
}
