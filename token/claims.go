package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
)

// DecodeExpiry reads the exp claim of a JWT without verifying its signature.
// The result is only fit for scheduling renewals; the server decides validity.
func DecodeExpiry(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, fmt.Errorf("empty token: %w", sesserrors.ErrMalformedToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("%v: %w", err, sesserrors.ErrMalformedToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%v: %w", err, sesserrors.ErrMalformedToken)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("missing exp claim: %w", sesserrors.ErrMalformedToken)
	}
	return exp.Time, nil
}
