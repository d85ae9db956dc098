// Package testhelpers provides utilities for testing the moderation service.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT creates a test JWT token for use when verification is disabled.
// The token has a valid structure but no signature (alg: none).
// A zero uid omits the numeric user id claim.
func GenerateTestJWT(sub, role, email string, uid int64) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := map[string]any{"sub": sub}
	if role != "" {
		payload["role"] = role
	}
	if email != "" {
		payload["email"] = email
	}
	if uid != 0 {
		payload["uid"] = fmt.Sprintf("%d", uid)
	}
	b, _ := json.Marshal(payload)

	encodedPayload := base64.RawURLEncoding.EncodeToString(b)
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, role, email string, uid int64) string {
	return "Bearer " + GenerateTestJWT(sub, role, email, uid)
}
