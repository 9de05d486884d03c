// Package httpgate turns gate decisions into HTTP responses.
package httpgate

import (
	"context"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-inventory-session/gate"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyDecision stores the gate.Decision for the request
	ContextKeyDecision ContextKey = "gate_decision"
	// ContextKeyUser stores the signed-in user on allowed requests
	ContextKeyUser ContextKey = "user"

	// NextParam carries the originally requested location to the login page.
	NextParam = "next"
)

// StateSource supplies the session state to evaluate against.
type StateSource interface {
	State() session.State
}

var deniedPage = template.Must(template.New("denied").Parse(`<!DOCTYPE html>
<html><head><title>Access denied</title></head>
<body>
<h1>Access denied</h1>
<p>You do not have access to this page ({{.Reason}}).</p>
{{if .Missing}}<p>Requires {{.Mode}} of:</p><ul>{{range .Missing}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body></html>
`))

// Guard wraps handlers with a gate.
type Guard struct {
	gate       *gate.Gate
	source     StateSource
	denied     http.Handler
	loading    http.Handler
	retryAfter time.Duration
}

// Option configures a Guard.
type Option func(*Guard)

// WithDeniedHandler replaces the default access-denied page.
func WithDeniedHandler(h http.Handler) Option {
	return func(g *Guard) {
		g.denied = h
	}
}

// WithLoadingHandler replaces the default 503 response while the session is busy.
func WithLoadingHandler(h http.Handler) Option {
	return func(g *Guard) {
		g.loading = h
	}
}

// WithRetryAfter sets the Retry-After hint of the default loading response.
func WithRetryAfter(d time.Duration) Option {
	return func(g *Guard) {
		g.retryAfter = d
	}
}

// NewGuard returns a Guard evaluating against source.
func NewGuard(source StateSource, g *gate.Gate, options ...Option) *Guard {
	guard := &Guard{
		gate:       g,
		source:     source,
		denied:     http.HandlerFunc(AccessDenied),
		retryAfter: time.Second,
	}
	for _, opt := range options {
		opt(guard)
	}
	if guard.loading == nil {
		guard.loading = http.HandlerFunc(guard.busy)
	}
	return guard
}

// Require returns middleware enforcing req.
func (g *Guard) Require(req gate.Requirement) func(http.Handler) http.Handler {
	return g.RequireWithFallback(req, nil)
}

// RequireWithFallback enforces req and renders fallback on denial instead of
// the guard's denied handler.
func (g *Guard) RequireWithFallback(req gate.Requirement, fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := g.source.State()
			d := g.gate.Check(state, req, r.URL.RequestURI())
			ctx := context.WithValue(r.Context(), ContextKeyDecision, d)
			r = r.WithContext(ctx)

			switch d.Kind {
			case gate.Loading:
				g.loading.ServeHTTP(w, r)
			case gate.Redirect:
				http.Redirect(w, r, loginURL(d), http.StatusSeeOther)
			case gate.Deny:
				log.Debug().Str("requirement", req.Name).Str("path", r.URL.Path).Strs("missing", d.Missing).Msg("access denied")
				if fallback != nil {
					fallback.ServeHTTP(w, r)
					return
				}
				g.denied.ServeHTTP(w, r)
			default:
				ctx = context.WithValue(ctx, ContextKeyUser, state.User)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func (g *Guard) busy(w http.ResponseWriter, r *http.Request) {
	secs := int(g.retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	http.Error(w, "session is busy, retry shortly", http.StatusServiceUnavailable)
}

func loginURL(d gate.Decision) string {
	if d.ReturnTo == "" {
		return d.Target
	}
	u, err := url.Parse(d.Target)
	if err != nil {
		return d.Target
	}
	q := u.Query()
	q.Set(NextParam, d.ReturnTo)
	u.RawQuery = q.Encode()
	return u.String()
}

// AccessDenied is the default denial view.
func AccessDenied(w http.ResponseWriter, r *http.Request) {
	d, _ := DecisionFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	if err := deniedPage.Execute(w, d); err != nil {
		log.Err(err).Msg("render access denied page")
	}
}

// DecisionFromContext returns the decision made for the request.
func DecisionFromContext(ctx context.Context) (gate.Decision, bool) {
	d, ok := ctx.Value(ContextKeyDecision).(gate.Decision)
	return d, ok
}

// UserFromContext returns the signed-in user on an allowed request.
func UserFromContext(ctx context.Context) (*users.User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(*users.User)
	return u, ok && u != nil
}

// Route is a guarded endpoint. An empty Method matches every method.
type Route struct {
	Method      string
	Pattern     string
	Requirement gate.Requirement
	Handler     http.Handler
	Fallback    http.Handler
}

// Mount registers routes on r, each behind its requirement.
func (g *Guard) Mount(r chi.Router, routes []Route) {
	for _, rt := range routes {
		h := g.RequireWithFallback(rt.Requirement, rt.Fallback)(rt.Handler)
		if rt.Method == "" {
			r.Handle(rt.Pattern, h)
			continue
		}
		r.Method(rt.Method, rt.Pattern, h)
	}
}

// SafeNext returns next when it is a local path, else fallback. Use it on
// the login page to avoid open redirects.
func SafeNext(next, fallback string) string {
	if next == "" || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return fallback
	}
	return next
}
