package gate

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-inventory-session/session"
)

// DefaultLoginPath is where unauthenticated sessions are sent.
const DefaultLoginPath = "/login"

const (
	ReasonMissingPermissions = "missing permissions"
	ReasonMissingRole        = "missing role"
)

// DecisionKind is the outcome of an evaluation.
type DecisionKind int

const (
	Loading DecisionKind = iota
	Redirect
	Deny
	Allow
)

func (k DecisionKind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Decision tells the caller what to render.
type Decision struct {
	Kind DecisionKind

	// Redirect
	Target   string
	ReturnTo string

	// Deny
	Reason   string
	Required []string
	Missing  []string
	Mode     Mode
}

// Allowed reports whether the content may be shown.
func (d Decision) Allowed() bool {
	return d.Kind == Allow
}

func (d Decision) String() string {
	switch d.Kind {
	case Redirect:
		if d.ReturnTo != "" {
			return fmt.Sprintf("redirect to %s (return to %s)", d.Target, d.ReturnTo)
		}
		return "redirect to " + d.Target
	case Deny:
		return fmt.Sprintf("deny: %s (%s of %s): %s", d.Reason, d.Mode, strings.Join(d.Required, ", "), strings.Join(d.Missing, ", "))
	default:
		return d.Kind.String()
	}
}

// Evaluate decides req against state. It has no side effects. A redirect
// targets DefaultLoginPath; use a Gate to set the path and return location.
func Evaluate(state session.State, req Requirement) Decision {
	if state.IsLoading {
		return Decision{Kind: Loading}
	}

	if req.RequireAuth && !state.IsAuthenticated {
		return Decision{Kind: Redirect, Target: DefaultLoginPath}
	}

	// User methods are nil-safe; a signed-out user holds nothing
	if missing, ok := match(req.Permissions, req.PermissionMode, state.User.HasPermission); !ok {
		return deny(ReasonMissingPermissions, req.Permissions, missing, req.PermissionMode)
	}

	if missing, ok := match(req.Roles, req.RoleMode, state.User.HasRole); !ok {
		return deny(ReasonMissingRole, req.Roles, missing, req.RoleMode)
	}

	return Decision{Kind: Allow}
}

func deny(reason string, required, missing []string, mode Mode) Decision {
	return Decision{
		Kind:     Deny,
		Reason:   reason,
		Required: append([]string(nil), required...),
		Missing:  missing,
		Mode:     mode,
	}
}

// Gate evaluates requirements with a configured login path.
type Gate struct {
	LoginPath string
}

// New returns a Gate redirecting to loginPath, or DefaultLoginPath if empty.
func New(loginPath string) *Gate {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Gate{LoginPath: loginPath}
}

// Check evaluates req and, on redirect, records requested as the location
// to return to after login.
func (g *Gate) Check(state session.State, req Requirement, requested string) Decision {
	d := Evaluate(state, req)
	if d.Kind == Redirect {
		d.Target = g.LoginPath
		d.ReturnTo = requested
	}
	return d
}
