package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// userClaims mirrors the access token's payload. Only claims the client
// actually reads are listed.
type userClaims struct {
	Email           string `json:"email"`
	IsVerifiedEmail bool   `json:"isVerifiedEmail"`

	jwt.RegisteredClaims
}

// parseClaims decodes a token's claims without verifying the signature.
// The client holds no key material; the server re-validates every request,
// so the decode is advisory (expiry scheduling, verification routing).
func parseClaims(token string) (*userClaims, error) {
	var claims userClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// tokenExpiry returns the token's exp claim. ok is false when the token is
// malformed or carries no expiry; callers treat that as already expired.
func tokenExpiry(token string) (expiry time.Time, ok bool) {
	claims, err := parseClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenEmail returns the email claim of a token, or "" when the token is
// malformed. Used to route an unverified account to the verification flow.
func TokenEmail(token string) string {
	claims, err := parseClaims(token)
	if err != nil {
		return ""
	}
	return claims.Email
}
