package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

// TokenFromRequest reads the bearer token of a WebSocket upgrade.
// Browsers cannot set headers on a WebSocket handshake, so the "token" query
// parameter is accepted as well and wins over the header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Authenticate validates the token of r.
func Authenticate(secret []byte, r *http.Request) (*CustomClaims, error) {
	return ValidateToken(secret, TokenFromRequest(r))
}

// WithClaims injects the user identity into ctx for the downstream layers.
func WithClaims(ctx context.Context, claims *CustomClaims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	return context.WithValue(ctx, RolesKey, claims.Roles)
}

// UserIDFrom returns the authenticated user of ctx, if any.
func UserIDFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
