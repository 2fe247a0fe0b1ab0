package rbac

import "strings"

// Scope is the breadth of a permission.
type Scope int

const (
	// ScopeUnscoped applies to the resource regardless of ownership or branch.
	ScopeUnscoped Scope = iota
	// ScopeOwn applies to records the user owns or created.
	ScopeOwn
	// ScopeBranch applies to records of the user's own cabang.
	ScopeBranch
	// ScopeGlobal applies to every record.
	ScopeGlobal
)

// String returns the token used for the scope inside permission codes.
func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeBranch:
		return "branch"
	case ScopeGlobal:
		return "all"
	default:
		return ""
	}
}

// ActionManage satisfies every other action on the same resource and scope.
const ActionManage = "manage"

// PermAdminAccess is the superuser permission.
const PermAdminAccess = "admin_access"

// Permission is a parsed permission code of the form <action>_<scope>_<resource>.
type Permission struct {
	Action   string
	Scope    Scope
	Resource string
	Code     string
}

// ParsePermission splits a permission code into its typed parts. Codes with
// fewer than two underscore separated tokens are rejected.
func ParsePermission(code string) (Permission, bool) {
	tokens := strings.Split(code, "_")
	if len(tokens) < 2 {
		return Permission{}, false
	}
	for _, t := range tokens {
		if t == "" {
			return Permission{}, false
		}
	}
	p := Permission{Action: tokens[0], Scope: ScopeUnscoped, Code: code}
	if len(tokens) >= 3 {
		switch tokens[1] {
		case "all":
			p.Scope = ScopeGlobal
		case "branch":
			p.Scope = ScopeBranch
		case "own":
			p.Scope = ScopeOwn
		}
	}
	if p.Scope == ScopeUnscoped {
		p.Resource = strings.Join(tokens[1:], "_")
	} else {
		p.Resource = strings.Join(tokens[2:], "_")
	}
	return p, true
}

// Satisfies reports whether p covers the action on resource at scope.
func (p Permission) Satisfies(action string, scope Scope, resource string) bool {
	if p.Scope != scope || p.Resource != resource {
		return false
	}
	return p.Action == action || p.Action == ActionManage
}

// coversRequired implements the menu wildcard rule: a global permission
// <action>_all_<X> satisfies a required <action2>_<resource2> when the
// actions agree (or p is manage) and X equals resource2 modulo a trailing "s".
func (p Permission) coversRequired(required string) bool {
	if p.Scope != ScopeGlobal {
		return false
	}
	action, resource, ok := strings.Cut(required, "_")
	if !ok || action == "" || resource == "" {
		return false
	}
	if p.Action != ActionManage && p.Action != action {
		return false
	}
	return p.Resource == resource || p.Resource == resource+"s" || p.Resource+"s" == resource
}

type grantKey struct {
	scope    Scope
	action   string
	resource string
}

// permissionSet holds the raw codes and their parsed form.
type permissionSet struct {
	codes  map[string]struct{}
	grants map[grantKey]struct{}
	global []Permission
}

func newPermissionSet(codes []string) permissionSet {
	set := permissionSet{
		codes:  make(map[string]struct{}, len(codes)),
		grants: make(map[grantKey]struct{}, len(codes)),
	}
	for _, code := range codes {
		if code == "" {
			continue
		}
		set.codes[code] = struct{}{}
		p, ok := ParsePermission(code)
		if !ok {
			continue
		}
		set.grants[grantKey{scope: p.Scope, action: p.Action, resource: p.Resource}] = struct{}{}
		if p.Scope == ScopeGlobal {
			set.global = append(set.global, p)
		}
	}
	return set
}

func (s permissionSet) has(code string) bool {
	_, ok := s.codes[code]
	return ok
}

func (s permissionSet) allows(scope Scope, action, resource string) bool {
	if _, ok := s.grants[grantKey{scope: scope, action: action, resource: resource}]; ok {
		return true
	}
	_, ok := s.grants[grantKey{scope: scope, action: ActionManage, resource: resource}]
	return ok
}
