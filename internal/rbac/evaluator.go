package rbac

import "strings"

// Evaluator functions are pure: they never mutate the principal, never block
// and answer false for a nil principal or missing input.

// HasRole reports whether the user's highest role ranks at or above any of
// the required roles. Unknown role codes never satisfy.
func HasRole(p *Principal, required ...string) bool {
	return CheckRole(p, required...).Granted
}

// CheckRole is HasRole with the deciding rule.
func CheckRole(p *Principal, required ...string) Decision {
	if p == nil || len(p.roles) == 0 {
		return deny(RuleNoUser)
	}
	if p.rank < 0 {
		return deny(RuleNoMatch)
	}
	for _, code := range required {
		idx := RoleIndex(code)
		if idx >= 0 && p.rank >= idx {
			return grant(RuleRole)
		}
	}
	return deny(RuleNoMatch)
}

// HasPermission reports whether the user holds any of the given codes exactly.
func HasPermission(p *Principal, perms ...string) bool {
	if p == nil {
		return false
	}
	for _, code := range perms {
		if p.perms.has(code) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every given code. An
// empty requirement is treated as missing input and denied.
func HasAllPermissions(p *Principal, perms ...string) bool {
	if p == nil || len(perms) == 0 {
		return false
	}
	for _, code := range perms {
		if !p.perms.has(code) {
			return false
		}
	}
	return true
}

// IsAdmin reports whether the user holds admin_access or the admin role.
func IsAdmin(p *Principal) bool {
	if p == nil {
		return false
	}
	return p.perms.has(PermAdminAccess) || p.hasRoleCode(RoleAdmin)
}

// HasAccess reports whether the user may perform action on resource.
func HasAccess(p *Principal, resource, action string, data *ResourceData) bool {
	return CheckAccess(p, resource, action, data).Granted
}

// CheckAccess evaluates, in order: admin_access, global scope, branch scope,
// unscoped resource permission and owner scope. Plural resource names are
// used for the global and branch scopes.
func CheckAccess(p *Principal, resource, action string, data *ResourceData) Decision {
	if p == nil {
		return deny(RuleNoUser)
	}
	if p.perms.has(PermAdminAccess) {
		return grant(RuleAdminAccess)
	}
	if resource == "" || action == "" {
		return deny(RuleNoMatch)
	}
	plural := resource + "s"
	if p.perms.allows(ScopeGlobal, action, plural) {
		return grant(RuleGlobal)
	}

	missingContext := false
	if p.perms.allows(ScopeBranch, action, plural) {
		if data == nil {
			missingContext = true
		} else if p.sameBranch(resource, data) {
			return grant(RuleBranch)
		}
	}
	// Literal codes cover resources whose names start with a scope token,
	// e.g. view_branch_report.
	if p.perms.allows(ScopeUnscoped, action, resource) ||
		p.perms.has(action+"_"+resource) || p.perms.has(ActionManage+"_"+resource) {
		return grant(RuleResource)
	}
	if p.perms.allows(ScopeOwn, action, resource) {
		if data == nil {
			missingContext = true
		} else if p.owns(data) {
			return grant(RuleOwn)
		}
	}
	if missingContext {
		return deny(RuleMissingContext)
	}
	return deny(RuleNoMatch)
}

func (p *Principal) sameBranch(resource string, data *ResourceData) bool {
	if p.cabangID == "" {
		return false
	}
	if data.CabangID != "" && data.CabangID == p.cabangID {
		return true
	}
	return resource == "branch" && data.ID != "" && data.ID == p.cabangID
}

func (p *Principal) owns(data *ResourceData) bool {
	if p.id == "" {
		return false
	}
	return data.UserID == p.id || data.CreatedBy == p.id
}

// GetMenuAccess derives the view/create/edit/delete flags for menu.
func GetMenuAccess(p *Principal, menu Menu) MenuAccess {
	access, _ := CheckMenuAccess(p, menu)
	return access
}

// CheckMenuAccess is GetMenuAccess with the deciding rule. A memoized entry
// for the menu is returned verbatim.
func CheckMenuAccess(p *Principal, menu Menu) (MenuAccess, Decision) {
	if p == nil {
		return MenuAccess{}, deny(RuleNoUser)
	}
	if menu.ID != "" {
		if cached, ok := p.menuAccess[menu.ID]; ok {
			return cached, Decision{Granted: cached.CanView, Rule: RuleMenuCache}
		}
	}
	if p.perms.has(PermAdminAccess) {
		return fullAccess(), grant(RuleAdminAccess)
	}
	if p.hasRoleCode(RoleAdmin) {
		return fullAccess(), grant(RuleAdminRole)
	}
	if len(p.codes) == 0 {
		return MenuAccess{}, deny(RuleNoPermissions)
	}
	if len(menu.RequiredPermissions) > 0 && !p.passesMenuGate(menu.RequiredPermissions) {
		return MenuAccess{}, deny(RuleMenuGate)
	}

	name := strings.ReplaceAll(menu.Code, "-", "_")
	access := MenuAccess{
		CanView:   true,
		CanCreate: p.canMenuAction("create", name),
		CanEdit:   p.canMenuAction("edit", name),
		CanDelete: p.canMenuAction("delete", name),
	}
	return access, grant(RulePermission)
}

func (p *Principal) passesMenuGate(required []string) bool {
	for _, code := range required {
		if p.perms.has(code) {
			return true
		}
	}
	for _, held := range p.perms.global {
		for _, code := range required {
			if held.coversRequired(code) {
				return true
			}
		}
	}
	return false
}

func (p *Principal) canMenuAction(action, name string) bool {
	if name == "" {
		return false
	}
	return HasPermission(p,
		action+"_"+name,
		ActionManage+"_"+name,
		action+"_all_"+name+"s",
		ActionManage+"_all_"+name+"s",
	)
}

func fullAccess() MenuAccess {
	return MenuAccess{CanView: true, CanCreate: true, CanEdit: true, CanDelete: true}
}
