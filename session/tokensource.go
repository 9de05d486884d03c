package session

import (
	"context"
	"time"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/token"
	"golang.org/x/oauth2"
)

// expiryLeeway matches oauth2's own early-expiry margin.
const expiryLeeway = 10 * time.Second

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource exposes the session's access token as an oauth2.TokenSource.
// A token about to expire is refreshed through the manager first.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	pair, ok := ts.m.store.Pair()
	if !ok {
		return nil, sesserrors.ErrNotAuthenticated
	}
	// opaque tokens are passed through; the server decides on them
	exp, err := token.DecodeExpiry(pair.AccessToken)
	if err != nil || exp.Sub(ts.m.nowFunc()) > expiryLeeway {
		return pair.OAuth2(), nil
	}

	if _, err := ts.m.Refresh(ts.ctx); err != nil {
		return nil, err
	}
	pair, ok = ts.m.store.Pair()
	if !ok {
		return nil, sesserrors.ErrNotAuthenticated
	}
	return pair.OAuth2(), nil
}
