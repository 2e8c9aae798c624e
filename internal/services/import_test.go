package services

import (
	"context"
	"errors"
	"testing"

	"tallyo/internal/core"
	"tallyo/internal/events"
)

func TestImportServiceValidation(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewImportService(repo, pub)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ImportRequest
	}{
		{"missing vendor", ImportRequest{Date: "2024-03-01", ExternalID: "x1", Amount: -100}},
		{"missing external id", ImportRequest{Date: "2024-03-01", Vendor: "MARKET", Amount: -100}},
		{"bad date", ImportRequest{Date: "01.03.2024", Vendor: "MARKET", ExternalID: "x1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(ctx, user, []ImportRequest{tt.req})
			var verr *core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(pub.messages) != 0 {
		t.Error("rejected imports must not publish")
	}
}

func TestImportServiceIdempotentReplay(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewImportService(repo, pub)
	ctx := context.Background()

	reqs := []ImportRequest{
		{Date: "2024-03-01", Vendor: "EMPLOYER", Amount: 250000, ExternalID: "stmt-1"},
		{Date: "2024-03-02", Vendor: "MARKET", Amount: -4200, ExternalID: "stmt-2"},
	}

	inserted, err := svc.Import(ctx, user, reqs)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}
	if len(pub.messages) != 1 || pub.messages[0].Kind != events.KindImported || pub.messages[0].Count != 2 {
		t.Errorf("messages = %+v", pub.messages)
	}

	// Replaying inserts nothing and stays quiet.
	inserted, err = svc.Import(ctx, user, reqs)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if inserted != 0 {
		t.Errorf("replay inserted = %d, want 0", inserted)
	}
	if len(pub.messages) != 1 {
		t.Errorf("replay must not publish, got %d messages", len(pub.messages))
	}
}

func TestImportServiceResolveToken(t *testing.T) {
	repo, pub, user := newFixture(t)
	svc := NewImportService(repo, pub)
	ctx := context.Background()

	if err := repo.CreateAPIToken(ctx, user, "tok-1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	got, err := svc.ResolveToken(ctx, "tok-1")
	if err != nil || got != user {
		t.Errorf("resolve = %q, %v", got, err)
	}
	if _, err := svc.ResolveToken(ctx, "unknown"); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Errorf("unknown token: expected ErrNotAuthenticated, got %v", err)
	}
}
