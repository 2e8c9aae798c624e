package core

// Mutation is a single-field transaction change. Each kind updates exactly
// one column scoped to (transaction id, user id) and is idempotent when
// re-applied with the same value. The original handler branched on which
// optional payload field was present; here every kind is its own type,
// dispatched explicitly.
type Mutation interface {
	// TransactionID identifies the row the mutation targets.
	TransactionID() string
	mutation()
}

type SetCategory struct {
	ID         string
	CategoryID *string // nil clears the category ("Uncategorized")
}

type SetReviewed struct {
	ID       string
	Reviewed bool
}

type SetDescription struct {
	ID          string
	Description string
}

type SetDisplayVendor struct {
	ID            string
	DisplayVendor string
}

func (m SetCategory) TransactionID() string      { return m.ID }
func (m SetReviewed) TransactionID() string      { return m.ID }
func (m SetDescription) TransactionID() string   { return m.ID }
func (m SetDisplayVendor) TransactionID() string { return m.ID }

func (SetCategory) mutation()      {}
func (SetReviewed) mutation()      {}
func (SetDescription) mutation()   {}
func (SetDisplayVendor) mutation() {}
