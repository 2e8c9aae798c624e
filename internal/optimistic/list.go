// Package optimistic implements the client-facing mutation protocol for the
// transaction list: preview a single-field change against a cached copy of
// the list, send it to the server, and either roll the cache back to its
// pre-mutation snapshot on failure or replace it with the server's
// authoritative rows on success.
package optimistic

import (
	"context"
	"sync"

	"tallyo/internal/core"
)

// ListCache mirrors one session's transaction list. All reads return deep
// copies so callers can never mutate cached rows in place.
type ListCache struct {
	mu    sync.RWMutex
	rows  []core.TransactionView
	valid bool
}

// Snapshot is an immutable deep copy of the cache taken before a preview.
// Restoring it puts the cache back exactly as it was.
type Snapshot struct {
	rows  []core.TransactionView
	valid bool
}

func NewListCache() *ListCache {
	return &ListCache{}
}

// Replace swaps in an authoritative row set from the server.
func (c *ListCache) Replace(rows []core.TransactionView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = cloneRows(rows)
	c.valid = true
}

// Invalidate marks the cache as needing a refetch without dropping its rows.
func (c *ListCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// Valid reports whether the cached rows are authoritative.
func (c *ListCache) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid
}

// Rows returns a deep copy of the cached rows.
func (c *ListCache) Rows() []core.TransactionView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneRows(c.rows)
}

// Snapshot captures the current cache state.
func (c *ListCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{rows: cloneRows(c.rows), valid: c.valid}
}

// Restore rewinds the cache to a previously captured snapshot.
func (c *ListCache) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = cloneRows(s.rows)
	c.valid = s.valid
}

// Preview applies a mutation to the cached rows ahead of the server's
// answer. Category changes resolve display metadata through the category
// cache so the previewed row carries a name and color immediately.
func (c *ListCache) Preview(ctx context.Context, m core.Mutation, categories *CategoryCache) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.rows {
		if c.rows[i].ID != m.TransactionID() {
			continue
		}
		switch mut := m.(type) {
		case core.SetCategory:
			c.rows[i].CategoryID = cloneStr(mut.CategoryID)
			if mut.CategoryID == nil {
				c.rows[i].Category = nil
			} else {
				ref := categories.Ref(ctx, *mut.CategoryID)
				c.rows[i].Category = &ref
			}
		case core.SetReviewed:
			c.rows[i].Reviewed = mut.Reviewed
		case core.SetDescription:
			d := mut.Description
			c.rows[i].Description = &d
		case core.SetDisplayVendor:
			v := mut.DisplayVendor
			c.rows[i].DisplayVendor = &v
		}
		return
	}
}

// Remove drops a row from the cache, previewing a delete.
func (c *ListCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.rows {
		if c.rows[i].ID == id {
			c.rows = append(c.rows[:i], c.rows[i+1:]...)
			return
		}
	}
}

func cloneRows(rows []core.TransactionView) []core.TransactionView {
	if rows == nil {
		return nil
	}
	out := make([]core.TransactionView, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}

func cloneRow(r core.TransactionView) core.TransactionView {
	r.DisplayVendor = cloneStr(r.DisplayVendor)
	r.Description = cloneStr(r.Description)
	r.CategoryID = cloneStr(r.CategoryID)
	r.PayeeID = cloneStr(r.PayeeID)
	r.ExternalID = cloneStr(r.ExternalID)
	if r.Category != nil {
		ref := *r.Category
		r.Category = &ref
	}
	return r
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
