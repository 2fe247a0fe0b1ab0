package users

import (
	"time"

	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

// Summary is the management view of a user account.
type Summary struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Name      string      `json:"name"`
	CabangID  string      `json:"cabangId,omitempty"`
	IsActive  bool        `json:"isActive"`
	Roles     []rbac.Role `json:"roles"`
	CreatedBy string      `json:"createdBy,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// RoleAssignment is one entry of a user's role set.
type RoleAssignment struct {
	Code      string `json:"code" validate:"required,max=64"`
	IsPrimary bool   `json:"isPrimary"`
}
