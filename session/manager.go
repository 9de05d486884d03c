// Package session owns the authenticated session: who is signed in, the
// token pair backing it, and every transition between signed in and out.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-inventory-session/authapi"
	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/internal/metrics"
	"github.com/jrsteele09/go-inventory-session/internal/utils"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/jrsteele09/go-inventory-session/token/refresh"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager is the single writer of the session and the token store.
//
// Every login, register and logout bumps a generation counter. Results of
// calls that started under an older generation are dropped, so a slow refresh
// can never bring back a session that was logged out while it was in flight.
type Manager struct {
	api         authapi.Service
	store       *token.Store
	coordinator *refresh.Coordinator
	nowFunc     func() time.Time
	logger      zerolog.Logger

	mu            sync.RWMutex
	user          *users.User
	authenticated bool
	loading       int
	lastError     string
	generation    uint64
	initialized   bool

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCoordinator shares a refresh coordinator between managers.
func WithCoordinator(c *refresh.Coordinator) ManagerOption {
	return func(m *Manager) {
		m.coordinator = c
	}
}

// WithNowFunc sets the clock used for token expiry checks.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager returns an unauthenticated Manager. Call Initialize before use.
func NewManager(api authapi.Service, store *token.Store, options ...ManagerOption) *Manager {
	m := &Manager{
		api:       api,
		store:     store,
		nowFunc:   time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.coordinator == nil {
		m.coordinator = refresh.NewCoordinator()
	}
	m.logger = log.With().Str("session", uuid.NewString()).Logger()
	return m
}

// State returns a copy of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	var user *users.User
	if m.user != nil {
		user = m.user.Clone()
	}
	return State{
		User:            user,
		IsAuthenticated: m.authenticated,
		IsLoading:       m.loading > 0,
		LastError:       m.lastError,
	}
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// Generation returns the current session generation.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Subscribe registers fn for session events and returns a func that removes it.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.listenersMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Manager) emit(kind EventKind) {
	m.mu.RLock()
	ev := Event{Kind: kind, Generation: m.generation, State: m.stateLocked()}
	m.mu.RUnlock()

	metrics.SetAuthenticated(ev.State.IsAuthenticated)

	m.listenersMu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// begin marks an operation in flight and clears the last error.
func (m *Manager) begin(bumpGeneration bool) (gen uint64, end func()) {
	m.mu.Lock()
	m.loading++
	m.lastError = ""
	if bumpGeneration {
		m.generation++
	}
	gen = m.generation
	m.mu.Unlock()

	if bumpGeneration {
		// a refresh still running for the old generation must not be joined
		m.coordinator.Forget()
	}

	var once sync.Once
	return gen, func() {
		once.Do(func() {
			m.mu.Lock()
			m.loading--
			m.mu.Unlock()
		})
	}
}

func (m *Manager) fail(gen uint64, err error, rejected string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.generation {
		m.lastError = userMessage(err, rejected)
	}
}

// commit persists a new pair and marks the session authenticated, unless the
// generation moved on. A nil user keeps the cached one.
func (m *Manager) commit(gen uint64, pair token.Pair, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		metrics.StaleWrite()
		m.logger.Debug().Uint64("generation", gen).Uint64("current", m.generation).Msg("discarding stale auth result")
		return sesserrors.ErrStaleSession
	}

	if err := m.store.SetPair(pair, user); err != nil {
		m.resetLocked()
		return err
	}

	if user != nil {
		m.user = user.Clone()
	} else if m.user == nil {
		if cached, ok := m.store.User(); ok {
			m.user = cached
		}
	}
	if m.user == nil {
		// a pair without a user would break the authenticated invariant
		m.store.Clear()
		m.resetLocked()
		return sesserrors.Wrapf(sesserrors.ErrStorage, "no user for session")
	}
	m.authenticated = true
	return nil
}

func (m *Manager) resetLocked() {
	m.user = nil
	m.authenticated = false
}

// Initialize restores a persisted session. With both tokens present it asks
// the server who they belong to; any failure clears the store and leaves the
// session signed out. Errors are not returned; see State().LastError.
func (m *Manager) Initialize(ctx context.Context) {
	gen, end := m.begin(false)
	defer func() {
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
		end()
		m.emit(EventInitialized)
	}()

	if _, ok := m.store.Pair(); !ok {
		// drop a lone token left by an interrupted write
		m.mu.Lock()
		if gen == m.generation {
			m.store.Clear()
		}
		m.mu.Unlock()
		metrics.AuthOperation("initialize", nil)
		return
	}

	user, err := m.api.CurrentUser(ctx)
	metrics.AuthOperation("initialize", err)
	if err != nil {
		m.logger.Info().Err(err).Msg("persisted session rejected, clearing")
		m.mu.Lock()
		if gen == m.generation {
			m.store.Clear()
			m.resetLocked()
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		metrics.StaleWrite()
		return
	}
	// the token pair may have been wiped while the call was in flight
	if _, ok := m.store.Pair(); !ok {
		m.resetLocked()
		return
	}
	if err := m.store.UpdateUser(user); err != nil {
		m.logger.Warn().Err(err).Msg("could not cache restored user")
	}
	m.user = user.Clone()
	m.authenticated = true
}

// Login signs in with credentials. On failure the session stays signed out
// and LastError describes why.
func (m *Manager) Login(ctx context.Context, credentials authapi.Credentials) error {
	gen, end := m.begin(true)
	defer end()

	resp, err := m.api.Login(ctx, credentials)
	if err == nil {
		err = m.commit(gen, resp.Pair(), resp.User)
	}
	metrics.AuthOperation("login", err)
	if err != nil {
		m.fail(gen, err, msgBadCredentials)
		m.afterFailedGrant(end, err)
		return err
	}
	m.logger.Info().Int64("user_id", resp.User.ID).Msg("logged in")
	end()
	m.emit(EventLoggedIn)
	return nil
}

// Register creates an account and signs in as it.
func (m *Manager) Register(ctx context.Context, registration authapi.Registration) error {
	gen, end := m.begin(true)
	defer end()

	resp, err := m.api.Register(ctx, registration)
	if err == nil {
		err = m.commit(gen, resp.Pair(), resp.User)
	}
	metrics.AuthOperation("register", err)
	if err != nil {
		m.fail(gen, err, msgRejectedGeneric)
		m.afterFailedGrant(end, err)
		return err
	}
	m.logger.Info().Int64("user_id", resp.User.ID).Msg("registered")
	end()
	m.emit(EventRegistered)
	return nil
}

// afterFailedGrant announces the sign-out caused by a store write failure.
func (m *Manager) afterFailedGrant(end func(), err error) {
	if sesserrors.Is(err, sesserrors.ErrStorage) {
		end()
		m.emit(EventLoggedOut)
	}
}

// Logout ends the session locally. The server is told on a best-effort basis;
// its failure is logged and never surfaced. Calling Logout twice is harmless.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx)
}

// logout returns the generation it started, so callers can report against it.
func (m *Manager) logout(ctx context.Context) uint64 {
	gen, end := m.begin(true)
	defer end()

	if _, ok := m.store.AccessToken(); ok {
		if err := m.api.Logout(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("server logout failed, clearing locally")
		}
	}

	m.mu.Lock()
	// a login that started after this logout owns the store now
	if gen == m.generation {
		m.store.Clear()
		m.resetLocked()
	}
	m.mu.Unlock()

	metrics.AuthOperation("logout", nil)
	m.logger.Info().Msg("logged out")
	end()
	m.emit(EventLoggedOut)
	return gen
}

// Refresh obtains a new access token. Concurrent calls share one request to
// the server. A rejected refresh logs the session out.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	_, end := m.begin(false)
	defer end()

	ok, err := m.coordinator.RequestRefresh(ctx, m.performRefresh)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// performRefresh runs once per flight and records LastError for every caller
// sharing it, against the generation it ran under.
func (m *Manager) performRefresh(ctx context.Context) (token.Pair, error) {
	gen := m.Generation()

	refreshToken, ok := m.store.RefreshToken()
	if !ok {
		if m.IsAuthenticated() {
			m.logger.Warn().Msg("session has no refresh token, logging out")
			gen = m.logout(ctx)
		}
		metrics.AuthOperation("refresh", sesserrors.ErrNoRefreshToken)
		m.fail(gen, sesserrors.ErrNoRefreshToken, msgSessionExpired)
		return token.Pair{}, sesserrors.ErrNoRefreshToken
	}

	resp, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		metrics.AuthOperation("refresh", err)
		if m.Generation() != gen {
			m.logger.Debug().Err(err).Msg("refresh failed for a previous session, ignoring")
			return token.Pair{}, fmt.Errorf("%w: %w", sesserrors.ErrStaleSession, err)
		}
		m.logger.Info().Err(err).Msg("refresh failed, logging out")
		m.fail(m.logout(ctx), err, msgSessionExpired)
		return token.Pair{}, err
	}

	// servers that do not rotate return only an access token
	pair := token.Pair{
		AccessToken:  resp.AccessToken,
		RefreshToken: utils.ValueOr(nonEmpty(resp.RefreshToken), refreshToken),
	}
	err = m.commit(gen, pair, resp.User)
	metrics.AuthOperation("refresh", err)
	if err != nil {
		if !sesserrors.Is(err, sesserrors.ErrStaleSession) {
			m.fail(gen, err, msgSessionExpired)
			m.emit(EventLoggedOut)
		}
		return token.Pair{}, err
	}
	m.emit(EventRefreshed)
	return pair, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// authenticatedCall checks preconditions shared by profile and password calls.
func (m *Manager) authenticatedCall(gen uint64) error {
	m.mu.RLock()
	initialized, authenticated := m.initialized, m.authenticated
	m.mu.RUnlock()

	var err error
	switch {
	case !initialized:
		err = sesserrors.ErrNotInitialized
	case !authenticated:
		err = sesserrors.ErrNotAuthenticated
	}
	if err != nil {
		m.fail(gen, err, msgRejectedGeneric)
	}
	return err
}

// UpdateProfile applies a partial update and refreshes the cached user.
func (m *Manager) UpdateProfile(ctx context.Context, update authapi.ProfileUpdate) error {
	gen, end := m.begin(false)
	defer end()
	if err := m.authenticatedCall(gen); err != nil {
		return err
	}

	user, err := m.api.UpdateProfile(ctx, update)
	metrics.AuthOperation("update_profile", err)
	if err != nil {
		m.fail(gen, err, msgRejectedGeneric)
		return err
	}

	m.mu.Lock()
	if gen != m.generation || !m.authenticated {
		m.mu.Unlock()
		metrics.StaleWrite()
		return sesserrors.ErrStaleSession
	}
	if err := m.store.UpdateUser(user); err != nil {
		m.logger.Warn().Err(err).Msg("could not cache updated user")
	}
	m.user = user.Clone()
	m.mu.Unlock()

	end()
	m.emit(EventUserUpdated)
	return nil
}

// ChangePassword changes the signed-in user's password.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	gen, end := m.begin(false)
	defer end()
	if err := m.authenticatedCall(gen); err != nil {
		return err
	}

	err := m.api.ChangePassword(ctx, authapi.PasswordChange{CurrentPassword: currentPassword, NewPassword: newPassword})
	metrics.AuthOperation("change_password", err)
	if err != nil {
		m.fail(gen, err, msgRejectedGeneric)
		return err
	}
	return nil
}

// Verify asks the server whether the session is still valid. A rejection
// logs the session out.
func (m *Manager) Verify(ctx context.Context) (bool, error) {
	gen, end := m.begin(false)
	defer end()
	if err := m.authenticatedCall(gen); err != nil {
		return false, err
	}

	v, err := m.api.VerifyToken(ctx)
	metrics.AuthOperation("verify", err)
	if err != nil {
		if sesserrors.Is(err, sesserrors.ErrRejected) && m.Generation() == gen {
			m.Logout(ctx)
			gen = m.Generation()
		}
		m.fail(gen, err, msgSessionExpired)
		return false, err
	}

	if v.User != nil {
		m.mu.Lock()
		if gen == m.generation && m.authenticated {
			if err := m.store.UpdateUser(v.User); err != nil {
				m.logger.Warn().Err(err).Msg("could not cache verified user")
			}
			m.user = v.User.Clone()
		}
		m.mu.Unlock()
	}
	return v.Valid, nil
}

// EnsureConsistent logs out when the session claims to be signed in but the
// token store no longer holds a pair. It reports whether the session is
// (still) authenticated.
func (m *Manager) EnsureConsistent(ctx context.Context) bool {
	m.mu.RLock()
	authenticated, loading := m.authenticated, m.loading > 0
	m.mu.RUnlock()

	if !authenticated {
		return false
	}
	if m.store.IsAuthenticated() {
		return true
	}
	if loading {
		// an operation is rewriting the store; check again next time
		return true
	}
	m.logger.Warn().Msg("token store lost the session, logging out")
	m.Logout(ctx)
	return false
}
