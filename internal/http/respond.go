package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tallyo/internal/core"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult folds an operation error into the {ok, message} envelope with
// the status derived from the error taxonomy.
func writeResult(w http.ResponseWriter, err error, okMessage string) {
	if err == nil {
		writeJSON(w, http.StatusOK, core.Result{OK: true, Message: okMessage})
		return
	}
	writeJSON(w, statusFor(err), core.Result{OK: false, Message: err.Error()})
}

// statusFor maps domain errors to HTTP status codes. Anything outside the
// taxonomy is an internal error.
func statusFor(err error) int {
	var validation *core.ValidationError
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &validation),
		errors.Is(err, core.ErrInvalidSplitAmount),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyVendor),
		errors.Is(err, core.ErrInvalidColor),
		errors.Is(err, core.ErrInvalidPeriod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON parses a JSON request body into dst, with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Validationf("body", "request body is empty")
		}
		return core.Validationf("body", "malformed JSON: %v", err)
	}
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
