package session

import (
	"github.com/jrsteele09/go-inventory-session/users"
)

// State is a point-in-time copy of the session.
// IsAuthenticated implies User is set and the token store holds a pair.
type State struct {
	User            *users.User
	IsAuthenticated bool
	IsLoading       bool
	LastError       string
}

// Permissions returns the user's effective permission set.
func (s State) Permissions() map[string]struct{} {
	if s.User == nil {
		return map[string]struct{}{}
	}
	return s.User.Permissions()
}

// RoleName returns the user's role name, or "" when unauthenticated.
func (s State) RoleName() string {
	if s.User == nil {
		return ""
	}
	return s.User.RoleName()
}

// EventKind says which transition produced an Event.
type EventKind int

const (
	EventInitialized EventKind = iota
	EventLoggedIn
	EventRegistered
	EventRefreshed
	EventUserUpdated
	EventLoggedOut
)

func (k EventKind) String() string {
	switch k {
	case EventInitialized:
		return "initialized"
	case EventLoggedIn:
		return "logged_in"
	case EventRegistered:
		return "registered"
	case EventRefreshed:
		return "refreshed"
	case EventUserUpdated:
		return "user_updated"
	case EventLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a session transition. State may
// already be outdated when a listener runs; listeners that act on it should
// re-read Manager.State.
type Event struct {
	Kind       EventKind
	Generation uint64
	State      State
}

// Listener receives session events. It is called synchronously and must not block.
type Listener func(Event)
