package services

import (
	"context"
	"log/slog"
	"time"

	"tallyo/internal/core"
	"tallyo/internal/events"
	"tallyo/internal/storage"
)

// ImportService handles token-authenticated bulk ingestion of external
// transactions. Replays are idempotent: rows colliding on the
// (external id, user) constraint are silently skipped.
type ImportService struct {
	repo      *storage.SQLiteRepository
	publisher Publisher
}

func NewImportService(repo *storage.SQLiteRepository, publisher Publisher) *ImportService {
	return &ImportService{repo: repo, publisher: publisher}
}

// ResolveToken maps a bearer token to a user id, or core.ErrNotAuthenticated.
func (s *ImportService) ResolveToken(ctx context.Context, token string) (string, error) {
	return s.repo.UserByAPIToken(ctx, token)
}

// ImportRequest is the validated wire payload of one import row.
type ImportRequest struct {
	Date       string `json:"date"`
	Vendor     string `json:"vendor"`
	Amount     int64  `json:"amount"`
	ExternalID string `json:"externalId"`
}

// Validate rejects malformed rows before any persistence access.
func (r ImportRequest) Validate() error {
	if r.Vendor == "" {
		return core.Validationf("vendor", "required")
	}
	if r.ExternalID == "" {
		return core.Validationf("externalId", "required")
	}
	if _, err := ParseDate(r.Date); err != nil {
		return err
	}
	return nil
}

// Import validates and stores the records for the token's user, returning
// the number of rows actually inserted.
func (s *ImportService) Import(ctx context.Context, userID string, reqs []ImportRequest) (int64, error) {
	records := make([]storage.ImportRecord, len(reqs))
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return 0, err
		}
		date, _ := ParseDate(req.Date)
		records[i] = storage.ImportRecord{
			Date:       date,
			Vendor:     req.Vendor,
			Amount:     req.Amount,
			ExternalID: req.ExternalID,
		}
	}

	inserted, err := s.repo.BulkImport(ctx, userID, records)
	if err != nil {
		return 0, err
	}

	if s.publisher != nil && inserted > 0 {
		msg := events.NewChangeMessage(events.KindImported, userID, "")
		msg.Count = inserted
		msg.Timestamp = time.Now()
		if err := s.publisher.PublishChange(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish import message",
				"error", err, "inserted", inserted)
		}
	}
	return inserted, nil
}
