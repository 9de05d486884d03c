package token

import (
	"time"

	"golang.org/x/oauth2"
)

// Kind names one of the three slots held by the Store.
type Kind string

const (
	KindAccess  Kind = "access_token"
	KindRefresh Kind = "refresh_token"
	KindUser    Kind = "user"
)

var kinds = []Kind{KindAccess, KindRefresh, KindUser}

// Pair is an access/refresh token pair issued by the auth service.
// Both halves are present or the pair is treated as absent.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Valid reports whether both tokens are set.
func (p Pair) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// OAuth2 converts the pair to an oauth2.Token. The expiry is decoded from the
// access token when possible and left zero otherwise.
func (p Pair) OAuth2() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: p.RefreshToken,
	}
	if exp, err := DecodeExpiry(p.AccessToken); err == nil {
		t.Expiry = exp
	}
	return t
}

// ExpiresWithin reports whether the access token expires within d of now.
// Undecodable tokens are reported as already expired.
func (p Pair) ExpiresWithin(d time.Duration, now time.Time) bool {
	exp, err := DecodeExpiry(p.AccessToken)
	if err != nil {
		return true
	}
	return exp.Sub(now) <= d
}
