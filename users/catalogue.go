package users

import "sort"

// Permission keys issued by the inventory backend.
const (
	PermUsersRead   = "users:read"
	PermUsersCreate = "users:create"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"

	PermInventoryRead   = "inventory:read"
	PermInventoryCreate = "inventory:create"
	PermInventoryUpdate = "inventory:update"
	PermInventoryDelete = "inventory:delete"
	PermInventoryExport = "inventory:export"

	PermCountsRead    = "counts:read"
	PermCountsCreate  = "counts:create"
	PermCountsUpdate  = "counts:update"
	PermCountsDelete  = "counts:delete"
	PermCountsApprove = "counts:approve"

	PermReportsRead   = "reports:read"
	PermReportsCreate = "reports:create"
	PermReportsExport = "reports:export"

	PermSystemAdmin  = "system:admin"
	PermSystemConfig = "system:config"

	PermLocationsRead   = "locations:read"
	PermLocationsCreate = "locations:create"
	PermLocationsUpdate = "locations:update"
	PermLocationsDelete = "locations:delete"

	PermRolesRead   = "roles:read"
	PermRolesCreate = "roles:create"
	PermRolesUpdate = "roles:update"
	PermRolesDelete = "roles:delete"
)

// Built-in role names.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleClerk   = "clerk"
	RoleViewer  = "viewer"
)

var allPermissions = []string{
	PermUsersRead, PermUsersCreate, PermUsersUpdate, PermUsersDelete,
	PermInventoryRead, PermInventoryCreate, PermInventoryUpdate, PermInventoryDelete, PermInventoryExport,
	PermCountsRead, PermCountsCreate, PermCountsUpdate, PermCountsDelete, PermCountsApprove,
	PermReportsRead, PermReportsCreate, PermReportsExport,
	PermSystemAdmin, PermSystemConfig,
	PermLocationsRead, PermLocationsCreate, PermLocationsUpdate, PermLocationsDelete,
	PermRolesRead, PermRolesCreate, PermRolesUpdate, PermRolesDelete,
}

var rolePermissions = map[string][]string{
	RoleAdmin: allPermissions,
	RoleManager: {
		PermUsersRead,
		PermInventoryRead, PermInventoryCreate, PermInventoryUpdate, PermInventoryExport,
		PermCountsRead, PermCountsCreate, PermCountsUpdate, PermCountsApprove,
		PermReportsRead, PermReportsCreate, PermReportsExport,
		PermLocationsRead,
		PermRolesRead,
	},
	RoleClerk: {
		PermInventoryRead,
		PermCountsRead, PermCountsCreate, PermCountsUpdate,
		PermReportsRead,
	},
	RoleViewer: {
		PermInventoryRead,
		PermCountsRead,
		PermReportsRead,
	},
}

// AllPermissions lists every permission key, sorted.
func AllPermissions() []string {
	out := append([]string(nil), allPermissions...)
	sort.Strings(out)
	return out
}

// BuiltinRole returns the default definition of a built-in role. Servers may
// customise roles, so the session always trusts the role sent with the user.
func BuiltinRole(name string) (*Role, bool) {
	perms, ok := rolePermissions[name]
	if !ok {
		return nil, false
	}
	return &Role{
		Name:        name,
		Permissions: append([]string(nil), perms...),
		IsActive:    true,
	}, true
}
