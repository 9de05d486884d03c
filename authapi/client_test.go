package authapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-inventory-session/authapi"
	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken() (string, bool) {
	return string(s), s != ""
}

type testFixture struct {
	mux    *http.ServeMux
	server *httptest.Server
	client *authapi.Client
	hits   atomic.Int32
}

func setupTestFixture(t *testing.T, tokens authapi.TokenReader) *testFixture {
	t.Helper()
	f := &testFixture{mux: http.NewServeMux()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	opts := []authapi.ClientOption{}
	if tokens != nil {
		opts = append(opts, authapi.WithTokenReader(tokens))
	}
	client, err := authapi.NewClient(f.server.URL+"/api/v1", opts...)
	require.NoError(t, err)
	f.client = client
	return f
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t, staticToken("stale"))
	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get(authapi.RequestIDHeader))

		var creds authapi.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "u@x.com", creds.Email)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  "AT1",
			"refresh_token": "RT1",
			"token_type":    "bearer",
			"expires_in":    1800,
			"user": map[string]interface{}{
				"id":       7,
				"username": "u",
				"email":    "u@x.com",
				"role":     map[string]interface{}{"name": "clerk", "permissions": []string{"inventory:read"}, "is_active": true},
			},
		})
	})

	resp, err := f.client.Login(context.Background(), authapi.Credentials{Email: "u@x.com", Password: "Passw0rd!"})
	require.NoError(t, err)
	require.Equal(t, "AT1", resp.AccessToken)
	require.Equal(t, "RT1", resp.Pair().RefreshToken)
	require.Equal(t, int64(7), resp.User.ID)
	require.True(t, resp.User.HasPermission("inventory:read"))
}

func TestLoginErrors(t *testing.T) {
	t.Run("rejected credentials carry server detail", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
		})

		_, err := f.client.Login(context.Background(), authapi.Credentials{Email: "u@x.com", Password: "nope"})
		require.ErrorIs(t, err, sesserrors.ErrRejected)
		require.Equal(t, "Incorrect email or password", authapi.DetailOf(err))

		var apiErr *authapi.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	})

	t.Run("validation list is joined", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"detail": []map[string]interface{}{
					{"loc": []string{"body", "email"}, "msg": "value is not a valid email address"},
					{"loc": []string{"body", "password"}, "msg": "field required"},
				},
			})
		})

		_, err := f.client.Login(context.Background(), authapi.Credentials{Email: "bad", Password: "x"})
		require.ErrorIs(t, err, sesserrors.ErrValidation)
		require.Equal(t, "value is not a valid email address; field required", authapi.DetailOf(err))
	})

	t.Run("server error is a network error", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := f.client.Login(context.Background(), authapi.Credentials{Email: "u@x.com", Password: "x"})
		require.ErrorIs(t, err, sesserrors.ErrNetwork)
	})

	t.Run("unreachable server", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.server.Close()

		_, err := f.client.Login(context.Background(), authapi.Credentials{Email: "u@x.com", Password: "x"})
		require.ErrorIs(t, err, sesserrors.ErrNetwork)
		require.NotErrorIs(t, err, sesserrors.ErrRejected)
	})

	t.Run("missing fields fail locally", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		_, err := f.client.Login(context.Background(), authapi.Credentials{Email: "u@x.com"})
		require.ErrorIs(t, err, sesserrors.ErrValidation)
		require.Equal(t, int32(0), f.hits.Load())
	})
}

func TestRefreshWithoutRotation(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "RT1", body["refresh_token"])
		writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "AT2", "token_type": "bearer"})
	})

	resp, err := f.client.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	require.Equal(t, "AT2", resp.AccessToken)
	require.Empty(t, resp.RefreshToken)
	require.Nil(t, resp.User)
}

func TestAuthenticatedCallsAttachBearer(t *testing.T) {
	f := setupTestFixture(t, staticToken("AT1"))
	f.mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, users.User{ID: 1, Username: "u", Email: "u@x.com"})
	})
	f.mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
	})
	f.mux.HandleFunc("GET /api/v1/auth/verify-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "user": users.User{ID: 1}})
	})

	user, err := f.client.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u@x.com", user.Email)

	require.NoError(t, f.client.Logout(context.Background()))

	v, err := f.client.VerifyToken(context.Background())
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, int64(1), v.User.ID)
}

// headerTransport stands in for a token-managing RoundTripper.
type headerTransport struct {
	value string
	calls atomic.Int32
}

func (h *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	h.calls.Add(1)
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", h.value)
	return http.DefaultTransport.RoundTrip(r)
}

func TestAuthorizedHTTPClientCarriesUserCalls(t *testing.T) {
	f := setupTestFixture(t, nil)
	authorized := &headerTransport{value: "Bearer managed"}
	client, err := authapi.NewClient(f.server.URL+"/api/v1",
		authapi.WithTokenReader(staticToken("AT1")),
		authapi.WithAuthorizedHTTPClient(&http.Client{Transport: authorized}),
	)
	require.NoError(t, err)

	f.mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer managed", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, users.User{ID: 1, Username: "u", Email: "u@x.com"})
	})
	f.mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
	})
	f.mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "AT2", "token_type": "bearer"})
	})

	_, err = client.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), authorized.calls.Load())

	// neither ending a session nor refreshing one may go through the managed client
	require.NoError(t, client.Logout(context.Background()))
	_, err = client.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	require.Equal(t, int32(1), authorized.calls.Load())
}

func TestUpdateProfileAndChangePassword(t *testing.T) {
	f := setupTestFixture(t, staticToken("AT1"))
	f.mux.HandleFunc("PUT /api/v1/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]interface{}{"email": "new@x.com"}, body)
		writeJSON(w, http.StatusOK, users.User{ID: 1, Email: "new@x.com"})
	})
	f.mux.HandleFunc("POST /api/v1/auth/change-password", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Current password is incorrect"})
	})

	email := "new@x.com"
	user, err := f.client.UpdateProfile(context.Background(), authapi.ProfileUpdate{Email: &email})
	require.NoError(t, err)
	require.Equal(t, "new@x.com", user.Email)

	err = f.client.ChangePassword(context.Background(), authapi.PasswordChange{CurrentPassword: "Old1pass", NewPassword: "N3wPassword"})
	require.ErrorIs(t, err, sesserrors.ErrValidation)
	require.Equal(t, "Current password is incorrect", authapi.DetailOf(err))
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := authapi.NewClient("/api/v1")
	require.Error(t, err)
}
