package auth

import (
	"context"
	"strings"
)

// UnknownLabel is the display label used when a principal has no usable identity field.
const UnknownLabel = "unknown"

// Principal is the authenticated actor behind a request.
type Principal struct {
	Subject string
	Email   string
	Name    string
	Role    string
	// UserID is nil when the identity provider has no numeric id for the user.
	UserID *int64
}

// Label returns the principal's display label: email, then name, then the
// opaque subject, then "unknown".
func (p *Principal) Label() string {
	for _, v := range []string{p.Email, p.Name, p.Subject} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return UnknownLabel
}

// PrincipalFromClaims builds a Principal from validated JWT claims.
func PrincipalFromClaims(claims *Claims) *Principal {
	if claims == nil {
		return nil
	}
	p := &Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Role:    strings.ToUpper(strings.TrimSpace(claims.Role)),
	}
	if id, ok := claims.NumericUserID(); ok {
		p.UserID = &id
	}
	return p
}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal retrieves the principal from context. When only claims are
// present, the principal is derived from them.
// Returns nil and false if the request is unauthenticated.
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	if p, ok := ctx.Value(PrincipalKey).(*Principal); ok && p != nil {
		return p, true
	}
	if claims, ok := GetClaims(ctx); ok && claims != nil {
		return PrincipalFromClaims(claims), true
	}
	return nil, false
}
