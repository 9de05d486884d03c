// Package tokentest mints access tokens for tests.
package tokentest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var secret = []byte("tokentest-secret")

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// AccessToken signs an HS256 JWT for subject that expires ttl after now.
func AccessToken(t testing.TB, subject string, ttl time.Duration) string {
	t.Helper()
	return AccessTokenAt(t, subject, NowTimeFunc().Add(ttl))
}

// AccessTokenAt signs an HS256 JWT for subject expiring at exp.
func AccessTokenAt(t testing.TB, subject string, exp time.Time) string {
	t.Helper()
	claims := jwtlib.MapClaims{
		"sub":  subject,
		"type": "access",
		"iat":  NowTimeFunc().Unix(),
		"exp":  exp.Unix(),
		"jti":  uuid.New().String(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("tokentest: sign: %v", err)
	}
	return signed
}

// WithoutExpiry signs a JWT that carries no exp claim.
func WithoutExpiry(t testing.TB, subject string) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": subject}).SignedString(secret)
	if err != nil {
		t.Fatalf("tokentest: sign: %v", err)
	}
	return signed
}
