// Package auth provides JWT-based authentication for the moderation service.
// It validates tokens issued by the identity provider using JWKS endpoints
// and exposes the authenticated principal to downstream code.
package auth

import (
	"context"
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/jsonutil"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
	// PrincipalKey is the context key for storing the resolved principal.
	PrincipalKey contextKey = "principal"
)

// Claims represents the JWT claims structure from the identity provider.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the fields moderation needs to attribute and authorize actions.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"` // User email address
	Name  string `json:"name,omitempty"`  // Display name
	Role  string `json:"role,omitempty"`  // Role code, e.g. "ADMIN" or "EDITOR"
	// UID is the numeric user id. Issuers encode it as a number or a string.
	UID json.RawMessage `json:"uid,omitempty"`
	// UserID is UID resolved during token validation.
	UserID *int64 `json:"-"`
}

// NumericUserID returns the numeric user id carried by the token, if any.
func (c *Claims) NumericUserID() (int64, bool) {
	if c.UserID != nil {
		return *c.UserID, true
	}
	if len(c.UID) == 0 {
		return 0, false
	}
	return jsonutil.FlexibleInt64(c.UID)
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
