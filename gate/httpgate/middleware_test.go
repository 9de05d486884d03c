package httpgate_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-inventory-session/gate"
	"github.com/jrsteele09/go-inventory-session/gate/httpgate"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/stretchr/testify/require"
)

type stateSource struct {
	mu    sync.Mutex
	state session.State
}

func (s *stateSource) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stateSource) set(state session.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func signedInAs(role string) session.State {
	r, _ := users.BuiltinRole(role)
	return session.State{IsAuthenticated: true, User: &users.User{ID: 9, Username: role + "1", Role: r, IsActive: true}}
}

type testFixture struct {
	source *stateSource
	router chi.Router
}

func setupTestFixture(t *testing.T, options ...httpgate.Option) *testFixture {
	t.Helper()
	f := &testFixture{source: &stateSource{}, router: chi.NewRouter()}
	guard := httpgate.NewGuard(f.source, gate.New("/login"), options...)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, found := httpgate.UserFromContext(r.Context())
		require.True(t, found)
		_, _ = w.Write([]byte("hello " + user.Username))
	})
	guard.Mount(f.router, []httpgate.Route{
		{Method: http.MethodGet, Pattern: "/inventory", Requirement: gate.InventoryRead, Handler: ok},
		{Pattern: "/admin", Requirement: gate.AdminOnly, Handler: ok},
		{
			Method:      http.MethodGet,
			Pattern:     "/reports/export",
			Requirement: gate.ReportsExport,
			Handler:     ok,
			Fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
			}),
		},
	})
	return f
}

func (f *testFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGuard(t *testing.T) {
	t.Run("signed out is redirected with next", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := f.get("/inventory?page=2")
		require.Equal(t, http.StatusSeeOther, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/login", loc.Path)
		require.Equal(t, "/inventory?page=2", loc.Query().Get(httpgate.NextParam))
	})

	t.Run("loading returns 503", func(t *testing.T) {
		f := setupTestFixture(t)
		f.source.set(session.State{IsLoading: true})
		rec := f.get("/inventory")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("allowed", func(t *testing.T) {
		f := setupTestFixture(t)
		f.source.set(signedInAs(users.RoleClerk))
		rec := f.get("/inventory")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "hello clerk1", rec.Body.String())
	})

	t.Run("denied renders default page", func(t *testing.T) {
		f := setupTestFixture(t)
		f.source.set(signedInAs(users.RoleManager))
		rec := f.get("/admin")
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "Access denied")
		require.Contains(t, rec.Body.String(), "<li>admin</li>")
	})

	t.Run("per-route fallback", func(t *testing.T) {
		f := setupTestFixture(t)
		f.source.set(signedInAs(users.RoleClerk))
		rec := f.get("/reports/export")
		require.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("custom denied handler", func(t *testing.T) {
		f := setupTestFixture(t, httpgate.WithDeniedHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, ok := httpgate.DecisionFromContext(r.Context())
			require.True(t, ok)
			require.Equal(t, gate.ReasonMissingRole, d.Reason)
			w.WriteHeader(http.StatusTeapot)
		})))
		f.source.set(signedInAs(users.RoleViewer))
		require.Equal(t, http.StatusTeapot, f.get("/admin").Code)
	})

	t.Run("state is read per request", func(t *testing.T) {
		f := setupTestFixture(t)
		f.source.set(signedInAs(users.RoleAdmin))
		require.Equal(t, http.StatusOK, f.get("/admin").Code)

		f.source.set(session.State{})
		require.Equal(t, http.StatusSeeOther, f.get("/admin").Code)
	})
}

func TestSafeNext(t *testing.T) {
	require.Equal(t, "/inventory?page=2", httpgate.SafeNext("/inventory?page=2", "/"))
	require.Equal(t, "/", httpgate.SafeNext("https://evil.example", "/"))
	require.Equal(t, "/", httpgate.SafeNext("//evil.example", "/"))
	require.Equal(t, "/", httpgate.SafeNext("", "/"))
}
