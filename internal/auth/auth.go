// Package auth resolves request credentials against storage: browser
// sessions for the JSON API and bearer API tokens for bulk import.
package auth

import (
	"context"
	"net/http"
	"strings"

	"tallyo/internal/core"
	"tallyo/internal/storage"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "tallyo_session"

type contextKey string

const userIDKey contextKey = "user_id"

// Authenticator resolves tokens to user ids.
type Authenticator struct {
	repo *storage.SQLiteRepository
}

func NewAuthenticator(repo *storage.SQLiteRepository) *Authenticator {
	return &Authenticator{repo: repo}
}

// SessionToken extracts the session token from the cookie or, failing that,
// the Authorization header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return BearerToken(r)
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// UserFromRequest resolves the request's session credential to a user id.
func (a *Authenticator) UserFromRequest(r *http.Request) (string, error) {
	token := SessionToken(r)
	if token == "" {
		return "", core.ErrNotAuthenticated
	}
	return a.repo.UserBySessionToken(r.Context(), token)
}

// UserFromAPIToken resolves a bulk-import bearer token to a user id.
func (a *Authenticator) UserFromAPIToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", core.ErrNotAuthenticated
	}
	return a.repo.UserByAPIToken(ctx, token)
}

// WithUser stores the authenticated user id on the context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID reads the authenticated user id from the context.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
