package rbac

// Role is a role reference attached to a user record.
type Role struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPrimary   bool   `json:"isPrimary"`
}

// User is the session user record as supplied by the auth backend.
type User struct {
	ID          string                `json:"id"`
	Username    string                `json:"username"`
	Name        string                `json:"name"`
	Role        string                `json:"role,omitempty"`
	Roles       []Role                `json:"roles"`
	Permissions []string              `json:"permissions"`
	CabangID    string                `json:"cabangId,omitempty"`
	MenuAccess  map[string]MenuAccess `json:"_menuAccess,omitempty"`
	Version     string                `json:"_version,omitempty"`
}

// Menu is a navigable entry of the ERP sidebar.
type Menu struct {
	ID                  string   `json:"_id"`
	Code                string   `json:"code"`
	Name                string   `json:"name"`
	Path                string   `json:"path"`
	Icon                string   `json:"icon,omitempty"`
	RequiredPermissions []string `json:"requiredPermissions"`
	ParentID            string   `json:"parentId,omitempty"`
	Order               int      `json:"order"`
	IsActive            bool     `json:"isActive"`
}

// MenuAccess lists the actions a user may perform on a menu's resource.
type MenuAccess struct {
	CanView   bool `json:"canView"`
	CanCreate bool `json:"canCreate"`
	CanEdit   bool `json:"canEdit"`
	CanDelete bool `json:"canDelete"`
}

// ResourceData is the record being accessed, used by branch and owner scoped rules.
type ResourceData struct {
	// ID identifies the record itself. For the "branch" resource it is the branch id.
	ID        string `json:"id,omitempty"`
	CabangID  string `json:"cabangId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
}

// Rule names the evaluator step that produced a decision.
type Rule string

const (
	RuleAdminAccess Rule = "admin_access"
	RuleAdminRole   Rule = "admin_role"
	RuleGlobal      Rule = "global"
	RuleBranch      Rule = "branch"
	RuleResource    Rule = "resource"
	RuleOwn         Rule = "own"
	RuleRole        Rule = "role"
	RulePermission  Rule = "permission"
	RuleMenuCache   Rule = "menu_cache"
	RuleMenuGate    Rule = "menu_gate"

	RuleNoUser         Rule = "no_user"
	RuleNoPermissions  Rule = "no_permissions"
	RuleNoMatch        Rule = "no_match"
	RuleMissingContext Rule = "missing_context"
)

// Decision is the outcome of an access check.
type Decision struct {
	Granted bool `json:"granted"`
	Rule    Rule `json:"rule"`
}

func grant(rule Rule) Decision { return Decision{Granted: true, Rule: rule} }

func deny(rule Rule) Decision { return Decision{Granted: false, Rule: rule} }

// Recorder observes decisions made on behalf of HTTP callers.
type Recorder interface {
	RecordDecision(check string, d Decision)
}
