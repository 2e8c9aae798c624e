package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by services, storage and the HTTP layer. Persistence
// errors are translated at the operation boundary into a Result envelope
// rather than leaking driver messages to callers.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidSplitAmount = errors.New("split amounts must sum to the original amount")
)

// ValidationError marks a malformed request payload, rejected before any
// persistence access.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ConflictError carries the human-readable message shown for a
// unique-constraint violation.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// TranslateConstraint rewrites a driver unique-constraint failure into a
// ConflictError with a human-readable message. The SQLite driver reports
// these as "UNIQUE constraint failed: <table>.<column>".
func TranslateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "categories.name"):
		return &ConflictError{Msg: "A category with this name already exists."}
	case strings.Contains(msg, "transactions.external_id"):
		return &ConflictError{Msg: "A transaction with this external id already exists."}
	case strings.Contains(msg, "payees.name"):
		return &ConflictError{Msg: "A payee with this name already exists."}
	default:
		return &ConflictError{Msg: "This record already exists."}
	}
}

// Result is the mutation envelope returned to clients: all persistence
// errors are caught at the operation boundary and reported here, never
// propagated as raw errors.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ResultOf folds an error into a Result envelope.
func ResultOf(err error, okMessage string) Result {
	if err == nil {
		return Result{OK: true, Message: okMessage}
	}
	return Result{OK: false, Message: err.Error()}
}
