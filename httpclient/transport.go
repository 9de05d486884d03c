// Package httpclient attaches the session's access token to API requests and
// recovers once from an expired token.
package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Refresher renews the session's tokens. session.Manager implements it.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// Transport is an http.RoundTripper that sends "Authorization: Bearer" from
// Source. On a 401 it asks Refresher for new tokens once and, if that worked,
// retries the request exactly once.
type Transport struct {
	Source    oauth2.TokenSource
	Refresher Refresher
	Base      http.RoundTripper
}

// NewClient returns an http.Client using Transport.
func NewClient(source oauth2.TokenSource, refresher Refresher, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &Transport{Source: source, Refresher: refresher},
		Timeout:   timeout,
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	first, err := t.authorize(req)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || t.Refresher == nil {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		// the body is gone and can't be replayed
		return resp, nil
	}

	ok, err := t.Refresher.Refresh(req.Context())
	if err != nil || !ok {
		log.Debug().Err(err).Str("url", req.URL.Redacted()).Msg("refresh after 401 failed")
		return resp, nil
	}

	retry, err := t.authorize(req)
	if err != nil {
		return resp, nil
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return t.base().RoundTrip(retry)
}

// authorize clones req with the current bearer token. A signed-out session
// sends the request without one.
func (t *Transport) authorize(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if t.Source == nil {
		return out, nil
	}
	tok, err := t.Source.Token()
	if errors.Is(err, sesserrors.ErrNotAuthenticated) {
		out.Header.Del("Authorization")
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	tok.SetAuthHeader(out)
	return out, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
