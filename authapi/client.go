// Package authapi is the client of the inventory Auth Service.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/jrsteele09/go-inventory-session/authapi"

	pathLogin          = "/auth/login"
	pathRegister       = "/auth/register"
	pathRefresh        = "/auth/refresh"
	pathLogout         = "/auth/logout"
	pathMe             = "/auth/me"
	pathProfile        = "/auth/profile"
	pathChangePassword = "/auth/change-password"
	pathVerifyToken    = "/auth/verify-token"

	// RequestIDHeader correlates a call with server logs.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// access says how a call is authorized.
type access int

const (
	public access = iota
	// bearer attaches the stored access token directly
	bearer
	// authorized goes through the authorized client when one is set
	authorized
)

// Service is the set of Auth Service calls the session layer depends on.
type Service interface {
	Login(ctx context.Context, credentials Credentials) (*TokenResponse, error)
	Register(ctx context.Context, registration Registration) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*users.User, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (*users.User, error)
	ChangePassword(ctx context.Context, change PasswordChange) error
	VerifyToken(ctx context.Context) (*Verification, error)
}

// TokenReader supplies the access token attached to authenticated calls.
type TokenReader interface {
	AccessToken() (string, bool)
}

var _ Service = (*Client)(nil)

// Client talks HTTP/JSON to the Auth Service.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	authorized *http.Client
	tokens     TokenReader
	validator *Validator
	tracer    trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithAuthorizedHTTPClient routes the calls made on behalf of a signed-in
// user (me, profile, change-password, verify-token) through hc, which must
// attach the bearer token itself. Logout keeps the default client so that
// ending a session never triggers a refresh.
func WithAuthorizedHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.authorized = hc
	}
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithTokenReader sets where bearer tokens come from.
func WithTokenReader(tokens TokenReader) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// NewClient returns a Client rooted at baseURL (e.g. https://api.example.com/api/v1).
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse auth service url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("auth service url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: 30 * time.Second},
		validator: NewValidator(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Login exchanges credentials for a token pair and user.
func (c *Client) Login(ctx context.Context, credentials Credentials) (*TokenResponse, error) {
	if err := c.validator.ValidateCredentials(credentials); err != nil {
		return nil, err
	}
	var resp TokenResponse
	if err := c.do(ctx, "login", http.MethodPost, pathLogin, credentials, &resp, public); err != nil {
		return nil, err
	}
	return checkTokenResponse(&resp, true)
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, registration Registration) (*TokenResponse, error) {
	if err := c.validator.ValidateRegistration(registration); err != nil {
		return nil, err
	}
	var resp TokenResponse
	if err := c.do(ctx, "register", http.MethodPost, pathRegister, registration, &resp, public); err != nil {
		return nil, err
	}
	return checkTokenResponse(&resp, true)
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, validationError("refresh token is required")
	}
	var resp TokenResponse
	if err := c.do(ctx, "refresh", http.MethodPost, pathRefresh, refreshRequest{RefreshToken: refreshToken}, &resp, public); err != nil {
		return nil, err
	}
	return checkTokenResponse(&resp, false)
}

// Logout tells the server the session is over.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, pathLogout, nil, nil, bearer)
}

// CurrentUser fetches the profile of the token's owner.
func (c *Client) CurrentUser(ctx context.Context) (*users.User, error) {
	var user users.User
	if err := c.do(ctx, "me", http.MethodGet, pathMe, nil, &user, authorized); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile applies a partial update and returns the stored user.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*users.User, error) {
	if err := c.validator.ValidateProfileUpdate(update); err != nil {
		return nil, err
	}
	var user users.User
	if err := c.do(ctx, "profile", http.MethodPut, pathProfile, update, &user, authorized); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword changes the caller's password.
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	if err := c.validator.ValidatePasswordChange(change); err != nil {
		return err
	}
	return c.do(ctx, "change_password", http.MethodPost, pathChangePassword, change, nil, authorized)
}

// VerifyToken asks the server whether the current access token is still valid.
func (c *Client) VerifyToken(ctx context.Context) (*Verification, error) {
	var v Verification
	if err := c.do(ctx, "verify_token", http.MethodGet, pathVerifyToken, nil, &v, authorized); err != nil {
		return nil, err
	}
	return &v, nil
}

func checkTokenResponse(resp *TokenResponse, full bool) (*TokenResponse, error) {
	if resp.AccessToken == "" {
		return nil, &Error{Kind: KindNetwork, Detail: "response is missing access_token"}
	}
	if full && (resp.RefreshToken == "" || resp.User == nil) {
		return nil, &Error{Kind: KindNetwork, Detail: "response is missing refresh_token or user"}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}, mode access) (err error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "authapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
			attribute.String("request.id", requestID),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encode %s request", op)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return errors.Wrapf(err, "build %s request", op)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	hc := c.http
	if mode == authorized && c.authorized != nil {
		hc = c.authorized
	} else if mode != public && c.tokens != nil {
		if accessToken, ok := c.tokens.AccessToken(); ok {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
	}

	res, err := hc.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("op", op).Str("request_id", requestID).Msg("auth service unreachable")
		return networkError(errors.Wrapf(err, "%s %s", method, path))
	}
	defer res.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		apiErr := errorFromResponse(res.StatusCode, raw)
		log.Debug().Str("op", op).Str("request_id", requestID).Int("status", res.StatusCode).Str("kind", apiErr.Kind.String()).Msg("auth service call failed")
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return networkError(errors.Wrapf(err, "decode %s response", op))
	}
	return nil
}
