package rbac

import "sort"

// Principal is a hydrated session user. Build it once per session load with
// NewPrincipal; it is read-only afterwards.
type Principal struct {
	id       string
	username string
	name     string
	cabangID string
	version  string

	roles   []Role
	primary Role
	rank    int

	perms      permissionSet
	codes      []string
	menuAccess map[string]MenuAccess
}

// NewPrincipal normalizes the legacy single role and the roles array into one
// collection and parses the permission codes.
func NewPrincipal(u User) *Principal {
	p := &Principal{
		id:       u.ID,
		username: u.Username,
		name:     u.Name,
		cabangID: u.CabangID,
		version:  u.Version,
		rank:     -1,
	}

	seen := make(map[string]struct{}, len(u.Roles)+1)
	primaryAt := -1
	for _, r := range u.Roles {
		code := normalizeRoleCode(r.Code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		r.Code = code
		if r.IsPrimary && primaryAt < 0 {
			primaryAt = len(p.roles)
		}
		r.IsPrimary = false
		p.roles = append(p.roles, r)
	}
	if legacy := normalizeRoleCode(u.Role); legacy != "" {
		if _, dup := seen[legacy]; !dup {
			p.roles = append(p.roles, Role{Code: legacy, Name: legacy})
		}
	}
	if len(p.roles) > 0 {
		if primaryAt < 0 {
			primaryAt = 0
		}
		p.roles[primaryAt].IsPrimary = true
		p.primary = p.roles[primaryAt]
	}
	for _, r := range p.roles {
		if i := RoleIndex(r.Code); i > p.rank {
			p.rank = i
		}
	}

	p.perms = newPermissionSet(u.Permissions)
	p.codes = make([]string, 0, len(p.perms.codes))
	for code := range p.perms.codes {
		p.codes = append(p.codes, code)
	}
	sort.Strings(p.codes)

	if len(u.MenuAccess) > 0 {
		p.menuAccess = make(map[string]MenuAccess, len(u.MenuAccess))
		for id, access := range u.MenuAccess {
			p.menuAccess[id] = access
		}
	}
	return p
}

// ID returns the user identifier.
func (p *Principal) ID() string {
	if p == nil {
		return ""
	}
	return p.id
}

// Version returns the snapshot version the principal was hydrated from.
func (p *Principal) Version() string {
	if p == nil {
		return ""
	}
	return p.version
}

// Username returns the login name.
func (p *Principal) Username() string {
	if p == nil {
		return ""
	}
	return p.username
}

// Name returns the display name.
func (p *Principal) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

// CabangID returns the user's branch, empty when unassigned.
func (p *Principal) CabangID() string {
	if p == nil {
		return ""
	}
	return p.cabangID
}

// Roles returns the normalized roles; exactly one is primary when non-empty.
func (p *Principal) Roles() []Role {
	if p == nil {
		return nil
	}
	out := make([]Role, len(p.roles))
	copy(out, p.roles)
	return out
}

// PrimaryRole returns the primary role and whether one exists.
func (p *Principal) PrimaryRole() (Role, bool) {
	if p == nil || len(p.roles) == 0 {
		return Role{}, false
	}
	return p.primary, true
}

// Permissions returns the sorted permission codes.
func (p *Principal) Permissions() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.codes))
	copy(out, p.codes)
	return out
}

// HighestRole returns the highest ranked known role code, empty when none is known.
func (p *Principal) HighestRole() string {
	if p == nil || p.rank < 0 {
		return ""
	}
	return hierarchy[p.rank]
}

func (p *Principal) hasRoleCode(code string) bool {
	for _, r := range p.roles {
		if r.Code == code {
			return true
		}
	}
	return false
}

// User converts the principal back into a record suitable for caching.
func (p *Principal) User() User {
	if p == nil {
		return User{}
	}
	u := User{
		ID:          p.id,
		Username:    p.username,
		Name:        p.name,
		Roles:       p.Roles(),
		Permissions: p.Permissions(),
		CabangID:    p.cabangID,
		Version:     p.version,
	}
	if len(p.menuAccess) > 0 {
		u.MenuAccess = make(map[string]MenuAccess, len(p.menuAccess))
		for id, access := range p.menuAccess {
			u.MenuAccess[id] = access
		}
	}
	return u
}

// WithMenuAccess returns a copy of p carrying the given menu access memo.
func (p *Principal) WithMenuAccess(memo map[string]MenuAccess) *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.menuAccess = make(map[string]MenuAccess, len(memo))
	for id, access := range memo {
		cp.menuAccess[id] = access
	}
	return &cp
}
