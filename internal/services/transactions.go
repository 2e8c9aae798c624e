// Package services orchestrates the domain operations over storage and
// change notifications: transaction mutations and splits, the category
// suggestion engine, bulk import, and reporting.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tallyo/internal/core"
	"tallyo/internal/events"
	"tallyo/internal/storage"
)

// Publisher pushes change notifications to other sessions. Implementations
// must be safe for concurrent use; the AMQP client in internal/events is the
// production one.
type Publisher interface {
	PublishChange(ctx context.Context, msg *events.ChangeMessage) error
}

// TransactionService applies transaction state transitions. Every write goes
// to storage first; a change notification is published afterwards,
// best-effort, and never fails the request.
type TransactionService struct {
	repo      *storage.SQLiteRepository
	publisher Publisher
}

func NewTransactionService(repo *storage.SQLiteRepository, publisher Publisher) *TransactionService {
	return &TransactionService{repo: repo, publisher: publisher}
}

func (s *TransactionService) List(ctx context.Context, userID string, limit int) ([]core.TransactionView, error) {
	return s.repo.ListTransactions(ctx, userID, limit)
}

func (s *TransactionService) UnreviewedCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.UnreviewedCount(ctx, userID)
}

func (s *TransactionService) Create(ctx context.Context, userID string, t core.Transaction) (*core.Transaction, error) {
	if t.ID == "" {
		t.ID = core.NewID()
	}
	t.UserID = userID
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	s.notify(ctx, events.KindCreated, userID, t.ID)
	return &t, nil
}

// Apply performs a single-field mutation scoped to the user.
func (s *TransactionService) Apply(ctx context.Context, userID string, m core.Mutation) error {
	if err := s.repo.ApplyMutation(ctx, userID, m); err != nil {
		return err
	}
	s.notify(ctx, events.KindUpdated, userID, m.TransactionID())
	return nil
}

// Split divides a transaction in two, rejecting amounts that do not sum to
// the original. Returns the newly created split-off transaction.
func (s *TransactionService) Split(ctx context.Context, userID, id string, firstAmount, secondAmount int64) (*core.Transaction, error) {
	clone, err := s.repo.Split(ctx, userID, id, firstAmount, secondAmount)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, events.KindSplit, userID, id)
	return clone, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.notify(ctx, events.KindDeleted, userID, id)
	return nil
}

// SuggestCategory looks up the transaction and suggests the caller's most
// frequent category for its vendor. An unresolvable transaction yields a nil
// suggestion rather than an error; the suggestion itself is a pure read and
// applying it is a separate mutation.
func (s *TransactionService) SuggestCategory(ctx context.Context, userID, transactionID string) (*string, error) {
	t, err := s.repo.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		if err == core.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve transaction: %w", err)
	}
	return s.repo.SuggestCategoryForVendor(ctx, userID, t.Vendor)
}

func (s *TransactionService) notify(ctx context.Context, kind events.Kind, userID, transactionID string) {
	if s.publisher == nil {
		return
	}
	msg := events.NewChangeMessage(kind, userID, transactionID)
	if err := s.publisher.PublishChange(ctx, msg); err != nil {
		// The write already succeeded; a lost notification only delays other
		// sessions until their next refetch.
		slog.ErrorContext(ctx, "Failed to publish change message",
			"error", err, "kind", kind, "transaction_id", transactionID)
	}
}

// ParseDate parses the wire format for transaction dates.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.Validationf("date", "must be RFC 3339 or YYYY-MM-DD")
}
