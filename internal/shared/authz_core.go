package shared

// Permission codes guarding the access administration API.
const (
	PermAdminAccess = "admin_access"

	PermViewEmployees       = "view_employee"
	PermViewBranchEmployees = "view_branch_employees"
	PermViewAllEmployees    = "view_all_employees"
	PermEditEmployees       = "edit_employee"
	PermManageAllEmployees  = "manage_all_employees"

	PermViewRoles   = "view_role"
	PermManageRoles = "manage_role"

	PermViewBranches    = "view_branch"
	PermViewAllBranches = "view_all_branchs"
	PermManageBranches  = "manage_branch"

	PermViewMenus   = "view_menu"
	PermManageMenus = "manage_menu"

	PermViewAudit = "view_audit"
)

// CoreScopes lists the permissions seeded for the access administration API.
func CoreScopes() []string {
	return []string{
		PermAdminAccess,
		PermViewEmployees,
		PermViewBranchEmployees,
		PermViewAllEmployees,
		PermEditEmployees,
		PermManageAllEmployees,
		PermViewRoles,
		PermManageRoles,
		PermViewBranches,
		PermViewAllBranches,
		PermManageBranches,
		PermViewMenus,
		PermManageMenus,
		PermViewAudit,
	}
}
