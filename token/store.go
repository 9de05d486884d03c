package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/rs/zerolog/log"
)

// Store persists the access token, refresh token and cached user profile.
// Reads never fail: any storage or decode problem is logged and reported as an
// absent value, which callers treat as "not authenticated".
type Store struct {
	repo   Repo
	sealer Sealer
	mu     sync.RWMutex // whole-pair writes are invisible to readers until done
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSealer encrypts every value at rest.
func WithSealer(sealer Sealer) StoreOption {
	return func(s *Store) {
		s.sealer = sealer
	}
}

// NewStore creates a Store over repo.
func NewStore(repo Repo, options ...StoreOption) *Store {
	s := &Store{repo: repo}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Get returns the raw value held for kind.
func (s *Store) Get(kind Kind) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(kind)
}

func (s *Store) get(kind Kind) (string, bool) {
	value, err := s.repo.Get(string(kind))
	if err != nil {
		if !errors.Is(err, sesserrors.ErrNotFound) {
			log.Warn().Err(err).Str("slot", string(kind)).Msg("token store read failed")
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	if s.sealer != nil {
		value, err = s.sealer.Open(string(kind), value)
		if err != nil {
			log.Warn().Err(err).Str("slot", string(kind)).Msg("token store value could not be opened")
			return "", false
		}
	}
	return value, true
}

func (s *Store) AccessToken() (string, bool) {
	return s.Get(KindAccess)
}

func (s *Store) RefreshToken() (string, bool) {
	return s.Get(KindRefresh)
}

// Pair returns both tokens, or false unless both are present.
func (s *Store) Pair() (Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	access, okA := s.get(KindAccess)
	refresh, okR := s.get(KindRefresh)
	if !okA || !okR {
		return Pair{}, false
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, true
}

// User returns the cached profile.
func (s *Store) User() (*users.User, bool) {
	raw, ok := s.Get(KindUser)
	if !ok {
		return nil, false
	}
	var u users.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Warn().Err(err).Msg("cached user could not be decoded")
		return nil, false
	}
	return &u, true
}

// IsAuthenticated is true iff both tokens are present. Expiry is not checked.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Pair()
	return ok
}

// SetPair writes access token, refresh token and, when user is non-nil, the
// user profile. A failed write clears every slot so no half-written pair
// survives; the returned error wraps errors.ErrStorage.
func (s *Store) SetPair(pair Pair, user *users.User) error {
	if !pair.Valid() {
		return fmt.Errorf("Store.SetPair: incomplete token pair: %w", sesserrors.ErrStorage)
	}

	entries := []Entry{
		{Key: string(KindAccess), Value: pair.AccessToken},
		{Key: string(KindRefresh), Value: pair.RefreshToken},
	}
	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("Store.SetPair marshal user: %v: %w", err, sesserrors.ErrStorage)
		}
		entries = append(entries, Entry{Key: string(KindUser), Value: string(raw)})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(entries); err != nil {
		log.Error().Err(err).Msg("token store write failed, clearing")
		s.clear()
		return fmt.Errorf("Store.SetPair: %v: %w", err, sesserrors.ErrStorage)
	}
	return nil
}

// UpdateUser replaces the cached profile, leaving tokens untouched.
func (s *Store) UpdateUser(user *users.User) error {
	if user == nil {
		return fmt.Errorf("Store.UpdateUser: nil user: %w", sesserrors.ErrStorage)
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("Store.UpdateUser marshal: %v: %w", err, sesserrors.ErrStorage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write([]Entry{{Key: string(KindUser), Value: string(raw)}}); err != nil {
		log.Error().Err(err).Msg("cached user write failed")
		return fmt.Errorf("Store.UpdateUser: %v: %w", err, sesserrors.ErrStorage)
	}
	return nil
}

// Clear removes all three slots. It is idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

func (s *Store) clear() {
	keys := make([]string, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, string(k))
	}
	if batch, ok := s.repo.(BatchRepo); ok {
		err := batch.DeleteAll(keys)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("token store batch clear failed, deleting one by one")
	}
	for _, key := range keys {
		if err := s.repo.Delete(key); err != nil && !errors.Is(err, sesserrors.ErrNotFound) {
			log.Warn().Err(err).Str("slot", key).Msg("token store delete failed")
		}
	}
}

func (s *Store) write(entries []Entry) error {
	if s.sealer != nil {
		sealed := make([]Entry, 0, len(entries))
		for _, e := range entries {
			v, err := s.sealer.Seal(e.Key, e.Value)
			if err != nil {
				return err
			}
			sealed = append(sealed, Entry{Key: e.Key, Value: v})
		}
		entries = sealed
	}

	if batch, ok := s.repo.(BatchRepo); ok {
		return batch.SetAll(entries)
	}
	for _, e := range entries {
		if err := s.repo.Set(e.Key, e.Value); err != nil {
			return fmt.Errorf("set %s: %w", e.Key, err)
		}
	}
	return nil
}
