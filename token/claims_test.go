package token_test

import (
	"testing"
	"time"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/jrsteele09/go-inventory-session/token/tokentest"
	"github.com/stretchr/testify/require"
)

func TestDecodeExpiry(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	t.Run("valid token", func(t *testing.T) {
		got, err := token.DecodeExpiry(tokentest.AccessTokenAt(t, "1", exp))
		require.NoError(t, err)
		require.True(t, exp.Equal(got))
	})

	t.Run("expired token still decodes", func(t *testing.T) {
		past := time.Now().Add(-time.Hour).Truncate(time.Second)
		got, err := token.DecodeExpiry(tokentest.AccessTokenAt(t, "1", past))
		require.NoError(t, err)
		require.True(t, past.Equal(got))
	})

	for name, raw := range map[string]string{
		"empty":       "",
		"not a jwt":   "AT1",
		"bad payload": "eyJhbGciOiJIUzI1NiJ9.!!!.sig",
		"no exp":      tokentest.WithoutExpiry(t, "1"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := token.DecodeExpiry(raw)
			require.ErrorIs(t, err, sesserrors.ErrMalformedToken)
		})
	}
}

func TestPairOAuth2(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	pair := token.Pair{AccessToken: tokentest.AccessTokenAt(t, "1", exp), RefreshToken: "RT1"}

	ot := pair.OAuth2()
	require.Equal(t, "Bearer", ot.TokenType)
	require.Equal(t, "RT1", ot.RefreshToken)
	require.True(t, exp.Equal(ot.Expiry))

	require.True(t, pair.ExpiresWithin(15*time.Minute, time.Now()))
	require.False(t, pair.ExpiresWithin(time.Minute, time.Now()))
	require.True(t, token.Pair{AccessToken: "garbage"}.ExpiresWithin(time.Minute, time.Now()))
}
