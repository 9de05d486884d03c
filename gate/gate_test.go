package gate_test

import (
	"testing"

	"github.com/jrsteele09/go-inventory-session/gate"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/users"
	"github.com/stretchr/testify/require"
)

func signedIn(role string, perms ...string) session.State {
	return session.State{
		IsAuthenticated: true,
		User: &users.User{
			ID:       1,
			Username: "someone",
			Role:     &users.Role{Name: role, Permissions: perms, IsActive: true},
			IsActive: true,
		},
	}
}

func TestEvaluateOrder(t *testing.T) {
	req := gate.Requirement{RequireAuth: true, Permissions: []string{"a"}}

	t.Run("loading wins", func(t *testing.T) {
		d := gate.Evaluate(session.State{IsLoading: true}, req)
		require.Equal(t, gate.Loading, d.Kind)
	})

	t.Run("unauthenticated is redirected", func(t *testing.T) {
		d := gate.Evaluate(session.State{}, req)
		require.Equal(t, gate.Redirect, d.Kind)
		require.Equal(t, gate.DefaultLoginPath, d.Target)
	})

	t.Run("no requirement allows anyone", func(t *testing.T) {
		require.True(t, gate.Evaluate(session.State{}, gate.Requirement{}).Allowed())
	})

	t.Run("signed-out user holds no permission or role", func(t *testing.T) {
		d := gate.Evaluate(session.State{}, gate.Requirement{Permissions: []string{"a", "b"}, PermissionMode: gate.Any})
		require.Equal(t, gate.Deny, d.Kind)
		require.Equal(t, []string{"a", "b"}, d.Missing)

		d = gate.Evaluate(session.State{}, gate.Requirement{Roles: []string{users.RoleAdmin}})
		require.Equal(t, gate.Deny, d.Kind)
		require.Equal(t, gate.ReasonMissingRole, d.Reason)
	})

	t.Run("permissions checked before roles", func(t *testing.T) {
		d := gate.Evaluate(signedIn("clerk"), gate.Requirement{
			RequireAuth: true,
			Permissions: []string{"a"},
			Roles:       []string{"admin"},
		})
		require.Equal(t, gate.Deny, d.Kind)
		require.Equal(t, gate.ReasonMissingPermissions, d.Reason)
	})
}

func TestPermissionModes(t *testing.T) {
	tests := []struct {
		name    string
		perms   []string
		mode    gate.Mode
		allowed bool
		missing []string
	}{
		{"all with one of two", []string{"a"}, gate.All, false, []string{"b"}},
		{"any with one of two", []string{"a"}, gate.Any, true, nil},
		{"all with superset", []string{"a", "b", "c"}, gate.All, true, nil},
		{"any with superset", []string{"a", "b", "c"}, gate.Any, true, nil},
		{"any with none", []string{"c"}, gate.Any, false, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Evaluate(signedIn("clerk", tt.perms...), gate.Permissions(tt.mode, "a", "b"))
			require.Equal(t, tt.allowed, d.Allowed())
			if !tt.allowed {
				require.Equal(t, gate.ReasonMissingPermissions, d.Reason)
				require.Equal(t, []string{"a", "b"}, d.Required)
				require.Equal(t, tt.missing, d.Missing)
				require.Equal(t, tt.mode, d.Mode)
			}
		})
	}
}

func TestRoleDenialNamesMissingRole(t *testing.T) {
	d := gate.Evaluate(signedIn("manager"), gate.Requirement{
		RequireAuth: true,
		Roles:       []string{"admin"},
		RoleMode:    gate.All,
	})
	require.Equal(t, gate.Deny, d.Kind)
	require.Equal(t, gate.ReasonMissingRole, d.Reason)
	require.Equal(t, []string{"admin"}, d.Missing)
	require.Contains(t, d.String(), "admin")
}

func TestRoleModes(t *testing.T) {
	require.True(t, gate.Evaluate(signedIn("manager"), gate.ManagerOrAdmin).Allowed())
	require.True(t, gate.Evaluate(signedIn("admin"), gate.ManagerOrAdmin).Allowed())
	require.False(t, gate.Evaluate(signedIn("clerk"), gate.ManagerOrAdmin).Allowed())

	// a single role can never hold two different roles at once
	require.False(t, gate.Evaluate(signedIn("admin"), gate.Roles(gate.All, "admin", "manager")).Allowed())
}

func TestInactiveRoleGrantsNoPermissions(t *testing.T) {
	state := signedIn("clerk", users.PermInventoryRead)
	state.User.Role.IsActive = false
	require.False(t, gate.Evaluate(state, gate.InventoryRead).Allowed())
}

func TestGateCheckCarriesReturnLocation(t *testing.T) {
	g := gate.New("/signin")
	d := g.Check(session.State{}, gate.InventoryRead, "/inventory/items?page=2")
	require.Equal(t, gate.Redirect, d.Kind)
	require.Equal(t, "/signin", d.Target)
	require.Equal(t, "/inventory/items?page=2", d.ReturnTo)

	require.Equal(t, gate.DefaultLoginPath, gate.New("").LoginPath)
}

func TestNamedRequirementsAgainstBuiltinRoles(t *testing.T) {
	stateFor := func(name string) session.State {
		role, ok := users.BuiltinRole(name)
		require.True(t, ok)
		return session.State{IsAuthenticated: true, User: &users.User{ID: 1, Role: role, IsActive: true}}
	}

	tests := []struct {
		req     gate.Requirement
		role    string
		allowed bool
	}{
		{gate.AdminOnly, users.RoleAdmin, true},
		{gate.AdminOnly, users.RoleManager, false},
		{gate.SystemAdmin, users.RoleAdmin, true},
		{gate.SystemAdmin, users.RoleManager, false},
		{gate.InventoryRead, users.RoleViewer, true},
		{gate.InventoryWrite, users.RoleViewer, false},
		{gate.InventoryWrite, users.RoleManager, true},
		{gate.CountsApprove, users.RoleManager, true},
		{gate.CountsApprove, users.RoleClerk, false},
		{gate.CountsManage, users.RoleClerk, true},
		{gate.ReportsExport, users.RoleClerk, false},
		{gate.UsersManage, users.RoleManager, false},
		{gate.UsersManage, users.RoleAdmin, true},
		{gate.RolesManage, users.RoleManager, false},
	}
	for _, tt := range tests {
		t.Run(tt.req.Name+"/"+tt.role, func(t *testing.T) {
			require.Equal(t, tt.allowed, gate.Evaluate(stateFor(tt.role), tt.req).Allowed())
		})
	}
}

func TestLookup(t *testing.T) {
	req, ok := gate.Lookup("manager_or_admin")
	require.True(t, ok)
	require.Equal(t, gate.Any, req.RoleMode)

	_, ok = gate.Lookup("nope")
	require.False(t, ok)
	require.Contains(t, gate.Names(), "inventory_read")
}
