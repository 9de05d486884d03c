// Package apifake is an in-memory Auth Service for tests and offline shells.
package apifake

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/go-inventory-session/authapi"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/jrsteele09/go-inventory-session/users"
)

// Op names a Service call for counting and failure injection.
type Op string

const (
	OpLogin          Op = "login"
	OpRegister       Op = "register"
	OpRefresh        Op = "refresh"
	OpLogout         Op = "logout"
	OpCurrentUser    Op = "me"
	OpUpdateProfile  Op = "profile"
	OpChangePassword Op = "change_password"
	OpVerifyToken    Op = "verify_token"
)

// MintFunc issues the token pair for the seq-th grant.
type MintFunc func(seq int, user *users.User) token.Pair

type account struct {
	password string
	user     *users.User
}

var _ authapi.Service = (*Service)(nil)

// Service is a scriptable authapi.Service.
type Service struct {
	mu       sync.Mutex
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
	current  string
	calls    map[Op]int
	failures map[Op]error
	seq      int
	nextID   int64
	mint     MintFunc
	rotate   bool
	tokens   authapi.TokenReader
	hold     *hold
}

type hold struct {
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithMinter replaces the default "AT<n>"/"RT<n>" tokens.
func WithMinter(mint MintFunc) Option {
	return func(s *Service) {
		s.mint = mint
	}
}

// WithoutRotation makes refresh return only an access token.
func WithoutRotation() Option {
	return func(s *Service) {
		s.rotate = false
	}
}

// WithTokenReader makes authenticated calls check the caller's bearer token.
func WithTokenReader(tokens authapi.TokenReader) Option {
	return func(s *Service) {
		s.tokens = tokens
	}
}

// New returns an empty Service.
func New(options ...Option) *Service {
	s := &Service{
		accounts: make(map[string]*account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		calls:    make(map[Op]int),
		failures: make(map[Op]error),
		nextID:   1,
		rotate:   true,
		mint: func(seq int, _ *users.User) token.Pair {
			return token.Pair{AccessToken: fmt.Sprintf("AT%d", seq), RefreshToken: fmt.Sprintf("RT%d", seq)}
		},
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Rejected is the error the fake returns for bad credentials or tokens.
func Rejected(detail string) error {
	return &authapi.Error{Kind: authapi.KindRejected, Status: http.StatusUnauthorized, Detail: detail}
}

// Invalid is the error the fake returns for bad payloads.
func Invalid(detail string) error {
	return &authapi.Error{Kind: authapi.KindValidation, Status: http.StatusBadRequest, Detail: detail}
}

// Unreachable is a transport failure.
func Unreachable() error {
	return &authapi.Error{Kind: authapi.KindNetwork, Err: fmt.Errorf("dial tcp: connection refused")}
}

// AddUser registers an account. A zero user ID is assigned.
func (s *Service) AddUser(user *users.User, password string) *users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUser(user, password)
}

func (s *Service) addUser(user *users.User, password string) *users.User {
	u := user.Clone()
	if u.ID == 0 {
		u.ID = s.nextID
	}
	if u.ID >= s.nextID {
		s.nextID = u.ID + 1
	}
	s.accounts[strings.ToLower(u.Email)] = &account{password: password, user: u}
	return u.Clone()
}

// Grant issues a token pair for an existing account without a login call.
func (s *Service) Grant(email string) (token.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return token.Pair{}, fmt.Errorf("apifake: no account %q", email)
	}
	return s.issue(acc.user), nil
}

// Revoke invalidates a refresh token and every access token of its owner.
func (s *Service) Revoke(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := s.refresh[refreshToken]
	delete(s.refresh, refreshToken)
	for at, owner := range s.access {
		if owner == email {
			delete(s.access, at)
		}
	}
}

// Fail makes every call to op return err until Heal.
func (s *Service) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Heal removes all injected failures.
func (s *Service) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[Op]error)
}

// Calls returns how many times op was invoked.
func (s *Service) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// HoldRefresh makes refresh calls block until release is called. started is
// closed when the first held refresh arrives.
func (s *Service) HoldRefresh() (started <-chan struct{}, release func()) {
	h := &hold{started: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.hold = h
	s.mu.Unlock()

	var once sync.Once
	return h.started, func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == h {
				s.hold = nil
			}
			s.mu.Unlock()
			close(h.release)
		})
	}
}

func (s *Service) enter(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.failures[op]
}

func (s *Service) issue(user *users.User) token.Pair {
	s.seq++
	pair := s.mint(s.seq, user)
	email := strings.ToLower(user.Email)
	s.access[pair.AccessToken] = email
	s.refresh[pair.RefreshToken] = email
	s.current = email
	return pair
}

func (s *Service) response(pair token.Pair, user *users.User) *authapi.TokenResponse {
	resp := &authapi.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    1800,
	}
	if user != nil {
		resp.User = user.Clone()
	}
	return resp
}

// caller resolves the account behind the current bearer token.
func (s *Service) caller() (*account, error) {
	email := s.current
	if s.tokens != nil {
		at, ok := s.tokens.AccessToken()
		if !ok {
			return nil, Rejected("Not authenticated")
		}
		owner, known := s.access[at]
		if !known {
			return nil, Rejected("Could not validate credentials")
		}
		email = owner
	}
	acc, ok := s.accounts[email]
	if !ok {
		return nil, Rejected("Could not validate credentials")
	}
	return acc, nil
}

func (s *Service) Login(ctx context.Context, credentials authapi.Credentials) (*authapi.TokenResponse, error) {
	if err := s.enter(OpLogin); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[strings.ToLower(credentials.Email)]
	if !ok || acc.password != credentials.Password {
		return nil, Rejected("Incorrect email or password")
	}
	if !acc.user.IsActive {
		return nil, Rejected("Inactive user")
	}
	return s.response(s.issue(acc.user), acc.user), nil
}

func (s *Service) Register(ctx context.Context, registration authapi.Registration) (*authapi.TokenResponse, error) {
	if err := s.enter(OpRegister); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[strings.ToLower(registration.Email)]; exists {
		return nil, Invalid("Email already registered")
	}
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.user.Username, registration.Username) {
			return nil, Invalid("Username already registered")
		}
	}

	role, _ := users.BuiltinRole(users.RoleClerk)
	user := s.addUser(&users.User{
		Username:  registration.Username,
		Email:     registration.Email,
		FirstName: registration.FirstName,
		LastName:  registration.LastName,
		Role:      role,
		IsActive:  true,
	}, registration.Password)
	return s.response(s.issue(user), user), nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error) {
	if err := s.enter(OpRefresh); err != nil {
		return nil, err
	}

	s.mu.Lock()
	h := s.hold
	s.mu.Unlock()
	if h != nil {
		h.once.Do(func() { close(h.started) })
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, &authapi.Error{Kind: authapi.KindNetwork, Err: ctx.Err()}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.refresh[refreshToken]
	if !ok {
		return nil, Rejected("Invalid refresh token")
	}
	acc, ok := s.accounts[email]
	if !ok || !acc.user.IsActive {
		return nil, Rejected("User not found or inactive")
	}

	pair := s.issue(acc.user)
	if !s.rotate {
		delete(s.refresh, pair.RefreshToken)
		return &authapi.TokenResponse{AccessToken: pair.AccessToken, TokenType: "bearer", ExpiresIn: 1800}, nil
	}
	delete(s.refresh, refreshToken)
	return s.response(pair, acc.user), nil
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.enter(OpLogout); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens != nil {
		if at, ok := s.tokens.AccessToken(); ok {
			delete(s.access, at)
		}
	}
	return nil
}

func (s *Service) CurrentUser(ctx context.Context) (*users.User, error) {
	if err := s.enter(OpCurrentUser); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.caller()
	if err != nil {
		return nil, err
	}
	return acc.user.Clone(), nil
}

func (s *Service) UpdateProfile(ctx context.Context, update authapi.ProfileUpdate) (*users.User, error) {
	if err := s.enter(OpUpdateProfile); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.caller()
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, Invalid("Nothing to update")
	}

	u := acc.user
	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.FirstName != nil {
		u.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		u.LastName = *update.LastName
	}
	if update.IsActive != nil {
		u.IsActive = *update.IsActive
	}
	if update.Email != nil && !strings.EqualFold(*update.Email, u.Email) {
		key := strings.ToLower(*update.Email)
		if _, taken := s.accounts[key]; taken {
			return nil, Invalid("Email already registered by another user")
		}
		old := strings.ToLower(u.Email)
		u.Email = *update.Email
		delete(s.accounts, old)
		s.accounts[key] = acc
		for at, owner := range s.access {
			if owner == old {
				s.access[at] = key
			}
		}
		for rt, owner := range s.refresh {
			if owner == old {
				s.refresh[rt] = key
			}
		}
		if s.current == old {
			s.current = key
		}
	}
	return u.Clone(), nil
}

func (s *Service) ChangePassword(ctx context.Context, change authapi.PasswordChange) error {
	if err := s.enter(OpChangePassword); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.caller()
	if err != nil {
		return err
	}
	if acc.password != change.CurrentPassword {
		return Invalid("Current password is incorrect")
	}
	acc.password = change.NewPassword
	return nil
}

func (s *Service) VerifyToken(ctx context.Context) (*authapi.Verification, error) {
	if err := s.enter(OpVerifyToken); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.caller()
	if err != nil {
		return nil, err
	}
	return &authapi.Verification{Valid: true, User: acc.user.Clone()}, nil
}
