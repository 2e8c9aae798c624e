package optimistic

import (
	"context"

	"tallyo/internal/core"
	"tallyo/internal/log"
)

// Applier sends a mutation to the server. services.TransactionService
// satisfies both Applier and Fetcher.
type Applier interface {
	Apply(ctx context.Context, userID string, m core.Mutation) error
}

// Fetcher reloads the authoritative transaction list after a settled
// mutation.
type Fetcher interface {
	List(ctx context.Context, userID string, limit int) ([]core.TransactionView, error)
}

// Mutator runs the full optimistic protocol for one user's list cache:
// snapshot, preview, apply, then rollback or refetch.
type Mutator struct {
	userID     string
	list       *ListCache
	categories *CategoryCache
	applier    Applier
	fetcher    Fetcher
	limit      int
	logger     *log.Logger
}

func NewMutator(userID string, list *ListCache, categories *CategoryCache, applier Applier, fetcher Fetcher, limit int, logger *log.Logger) *Mutator {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Mutator{
		userID:     userID,
		list:       list,
		categories: categories,
		applier:    applier,
		fetcher:    fetcher,
		limit:      limit,
		logger:     logger.WithComponent(log.ComponentCache),
	}
}

// Do previews the mutation against the cache, applies it on the server, and
// settles: a rejected mutation restores the pre-mutation snapshot exactly, a
// successful one replaces the cache with refetched rows. The returned error
// is the server's, untouched.
func (m *Mutator) Do(ctx context.Context, mut core.Mutation) error {
	snapshot := m.list.Snapshot()
	m.list.Preview(ctx, mut, m.categories)

	if err := m.applier.Apply(ctx, m.userID, mut); err != nil {
		m.list.Restore(snapshot)
		return err
	}

	m.settle(ctx)
	return nil
}

// settle reconciles the previewed cache with the server. A failed refetch
// leaves the preview in place but marks the cache invalid so the next read
// goes back to the server.
func (m *Mutator) settle(ctx context.Context) {
	if m.fetcher == nil {
		m.list.Invalidate()
		return
	}
	rows, err := m.fetcher.List(ctx, m.userID, m.limit)
	if err != nil {
		m.logger.WarnContext(ctx, "Refetch after mutation failed, cache marked stale",
			log.FieldError, err.Error(), log.FieldUserID, m.userID)
		m.list.Invalidate()
		return
	}
	m.list.Replace(rows)
}
