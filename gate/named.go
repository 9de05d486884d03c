package gate

import (
	"sort"

	"github.com/jrsteele09/go-inventory-session/users"
)

// Route guards used across the inventory screens.
var (
	RequireAuthenticated = Authenticated()

	AdminOnly      = Roles(All, users.RoleAdmin).Named("admin_only")
	ManagerOnly    = Roles(All, users.RoleManager).Named("manager_only")
	ManagerOrAdmin = Roles(Any, users.RoleManager, users.RoleAdmin).Named("manager_or_admin")
	SystemAdmin    = Permissions(All, users.PermSystemAdmin).Named("system_admin")

	InventoryRead   = Permissions(All, users.PermInventoryRead).Named("inventory_read")
	InventoryWrite  = Permissions(Any, users.PermInventoryCreate, users.PermInventoryUpdate, users.PermInventoryDelete).Named("inventory_write")
	InventoryExport = Permissions(All, users.PermInventoryExport).Named("inventory_export")

	CountsRead    = Permissions(All, users.PermCountsRead).Named("counts_read")
	CountsManage  = Permissions(Any, users.PermCountsCreate, users.PermCountsUpdate, users.PermCountsDelete, users.PermCountsApprove).Named("counts_manage")
	CountsApprove = Permissions(All, users.PermCountsApprove).Named("counts_approve")

	ReportsRead   = Permissions(All, users.PermReportsRead).Named("reports_read")
	ReportsExport = Permissions(All, users.PermReportsExport).Named("reports_export")

	UsersManage     = Permissions(All, users.PermUsersRead, users.PermUsersUpdate).Named("users_manage")
	LocationsManage = Permissions(Any, users.PermLocationsCreate, users.PermLocationsUpdate, users.PermLocationsDelete).Named("locations_manage")
	RolesManage     = Permissions(Any, users.PermRolesCreate, users.PermRolesUpdate, users.PermRolesDelete).Named("roles_manage")
)

var named = map[string]Requirement{}

func init() {
	for _, r := range []Requirement{
		RequireAuthenticated,
		AdminOnly, ManagerOnly, ManagerOrAdmin, SystemAdmin,
		InventoryRead, InventoryWrite, InventoryExport,
		CountsRead, CountsManage, CountsApprove,
		ReportsRead, ReportsExport,
		UsersManage, LocationsManage, RolesManage,
	} {
		named[r.Name] = r
	}
}

// Lookup returns the named route guard.
func Lookup(name string) (Requirement, bool) {
	r, ok := named[name]
	return r, ok
}

// Names lists the named route guards.
func Names() []string {
	out := make([]string, 0, len(named))
	for name := range named {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
