// Package gate decides whether a session may see a protected resource.
package gate

import (
	"sort"
	"strings"
)

// Mode says how a set of permissions or roles is matched.
type Mode int

const (
	// All requires every entry of the set.
	All Mode = iota
	// Any requires at least one entry of the set.
	Any
)

func (m Mode) String() string {
	if m == Any {
		return "any"
	}
	return "all"
}

// Requirement describes what a resource asks of the session. It is plain
// data; build it once and reuse it.
type Requirement struct {
	Name           string
	RequireAuth    bool
	Permissions    []string
	PermissionMode Mode
	Roles          []string
	RoleMode       Mode
}

// Authenticated requires a signed-in session and nothing else.
func Authenticated() Requirement {
	return Requirement{Name: "authenticated", RequireAuth: true}
}

// Permissions requires a signed-in session holding perms under mode.
func Permissions(mode Mode, perms ...string) Requirement {
	return Requirement{
		Name:           strings.Join(perms, ","),
		RequireAuth:    true,
		Permissions:    perms,
		PermissionMode: mode,
	}
}

// Roles requires a signed-in session whose role matches roles under mode.
func Roles(mode Mode, roles ...string) Requirement {
	return Requirement{
		Name:        strings.Join(roles, ","),
		RequireAuth: true,
		Roles:       roles,
		RoleMode:    mode,
	}
}

// Named returns r with a different name.
func (r Requirement) Named(name string) Requirement {
	r.Name = name
	return r
}

// match returns the entries of required not satisfied by has under mode.
// Under Any, all entries are reported when none is held.
func match(required []string, mode Mode, has func(string) bool) (missing []string, ok bool) {
	if len(required) == 0 {
		return nil, true
	}
	for _, want := range required {
		if has(want) {
			if mode == Any {
				return nil, true
			}
			continue
		}
		missing = append(missing, want)
	}
	if mode == Any || len(missing) > 0 {
		sort.Strings(missing)
		return missing, false
	}
	return nil, true
}
