package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-inventory-session/authapi"
	"github.com/jrsteele09/go-inventory-session/authapi/apifake"
	"github.com/jrsteele09/go-inventory-session/httpclient"
	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/token"
	tokenrepofake "github.com/jrsteele09/go-inventory-session/token/repofake"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeSession struct {
	mu         sync.Mutex
	current    string
	next       string
	refreshErr error
	refreshes  int
}

func (s *fakeSession) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return nil, sesserrors.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: s.current, TokenType: "Bearer"}, nil
}

func (s *fakeSession) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.refreshErr != nil {
		s.current = ""
		return false, s.refreshErr
	}
	s.current = s.next
	return true, nil
}

// newAPI accepts only the bearer token held in valid and echoes request bodies.
func newAPI(t *testing.T, valid *atomic.Value, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("ok:"), body...))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRetriesOnceAfterRefresh(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	var hits atomic.Int32
	srv := newAPI(t, &valid, &hits)

	sess := &fakeSession{current: "AT1", next: "AT2"}
	client := httpclient.NewClient(sess, sess, 5*time.Second)

	resp, err := client.Post(srv.URL+"/counts", "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok:payload", string(body))
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, 1, sess.refreshes)
}

func TestFailedRefreshReturnsOriginal401(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	var hits atomic.Int32
	srv := newAPI(t, &valid, &hits)

	sess := &fakeSession{current: "AT1", refreshErr: errors.New("rejected")}
	client := httpclient.NewClient(sess, sess, 5*time.Second)

	resp, err := client.Get(srv.URL + "/inventory")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, 1, sess.refreshes)
}

func TestSecond401IsNotRetried(t *testing.T) {
	var valid atomic.Value
	valid.Store("never")
	var hits atomic.Int32
	srv := newAPI(t, &valid, &hits)

	sess := &fakeSession{current: "AT1", next: "AT2"}
	client := httpclient.NewClient(sess, sess, 5*time.Second)

	resp, err := client.Get(srv.URL + "/inventory")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, 1, sess.refreshes)
}

func TestSignedOutSendsNoBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := httpclient.NewClient(&fakeSession{}, nil, time.Second)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWithSessionManager(t *testing.T) {
	store := token.NewStore(tokenrepofake.NewFakeKVRepo())
	api := apifake.New(apifake.WithTokenReader(store))
	api.AddUser(&users.User{Username: "clerk1", Email: "u@x.com", IsActive: true}, "Passw0rd!")
	manager := session.NewManager(api, store)
	require.NoError(t, manager.Login(context.Background(), authapi.Credentials{Email: "u@x.com", Password: "Passw0rd!"}))

	// the API has already moved on to the next access token
	var valid atomic.Value
	valid.Store("AT2")
	var hits atomic.Int32
	srv := newAPI(t, &valid, &hits)

	client := httpclient.NewClient(manager.TokenSource(context.Background()), manager, 5*time.Second)
	resp, err := client.Get(srv.URL + "/inventory")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, api.Calls(apifake.OpRefresh))
	at, _ := store.AccessToken()
	require.Equal(t, "AT2", at)
}
