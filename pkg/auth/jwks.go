package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingRole is returned for a verified token that carries no role.
	ErrMissingRole = errors.New("missing role in token")
	// ErrInvalidUserID is returned when the uid claim is present but not numeric.
	ErrInvalidUserID = errors.New("invalid uid claim in token")
)

// clockSkew is the leeway applied to exp/nbf/iat of verified tokens.
const clockSkew = 30 * time.Second

// JWKSClientInterface validates tokens issued by the identity provider.
type JWKSClientInterface interface {
	// ValidateToken returns normalized claims for a valid token.
	ValidateToken(tokenString string) (*Claims, error)
	Close()
}

// JWKSConfig contains configuration for the JWKS client.
type JWKSConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// When false tokens are parsed without verification (local development).
	EnableVerification bool
	// JWKSEndpoints maps issuer URLs to their JWKS endpoint URLs.
	// Only tokens from issuers in this map are accepted.
	JWKSEndpoints map[string]string
}

// JWKSClient validates JWTs against per-issuer JWKS key sets and applies the
// moderation claim rules: a subject is required, the role is upper-cased,
// and uid must be numeric when present. Verified tokens must carry a role
// and an expiry.
type JWKSClient struct {
	endpoints map[string]keyfunc.Keyfunc
	config    *JWKSConfig
}

// NewJWKSClient creates a client. With verification enabled it loads every
// configured JWKS endpoint and fails if any of them cannot be set up.
func NewJWKSClient(config *JWKSConfig) (*JWKSClient, error) {
	client := &JWKSClient{
		endpoints: make(map[string]keyfunc.Keyfunc),
		config:    config,
	}

	if !config.EnableVerification {
		return client, nil
	}

	for issuer, jwksURL := range config.JWKSEndpoints {
		jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		client.endpoints[issuer] = jwks
	}

	return client, nil
}

// ValidateToken parses tokenString and returns its normalized claims.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	if !c.config.EnableVerification {
		claims, err := c.parseUnverifiedToken(tokenString)
		if err != nil {
			return nil, err
		}
		if err := normalizeClaims(claims, false); err != nil {
			return nil, err
		}
		return claims, nil
	}

	claims, err := c.parseVerifiedToken(tokenString)
	if err != nil {
		return nil, err
	}
	if err := normalizeClaims(claims, true); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *JWKSClient) parseVerifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		claims, ok := token.Claims.(*Claims)
		if !ok {
			return nil, errors.New("invalid claims type")
		}

		jwks, exists := c.endpoints[claims.Issuer]
		if !exists {
			return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
		}
		return jwks.KeyfuncCtx(context.Background())(token)
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// parseUnverifiedToken parses a JWT without checking its signature or
// registered claims.
func (c *JWKSClient) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// normalizeClaims applies the moderation claim rules in place and resolves
// the numeric user id. A role-less token is only tolerated unverified; the
// access scope resolver then forbids it.
func normalizeClaims(claims *Claims, verified bool) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrMissingSubject
	}

	claims.Role = strings.ToUpper(strings.TrimSpace(claims.Role))
	if verified && claims.Role == "" {
		return ErrMissingRole
	}

	claims.UserID = nil
	if len(claims.UID) > 0 && string(claims.UID) != "null" {
		id, ok := claims.NumericUserID()
		if !ok {
			return ErrInvalidUserID
		}
		claims.UserID = &id
	}
	return nil
}

// Close is a no-op; keyfunc v3 refreshes keys without background resources
// that need releasing.
func (c *JWKSClient) Close() {}

var _ JWKSClientInterface = (*JWKSClient)(nil)
