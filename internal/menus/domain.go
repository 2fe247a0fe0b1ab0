package menus

import "github.com/samudra-erp/samudra-erp/internal/rbac"

// Node is a visible menu entry annotated with the caller's access.
type Node struct {
	ID       string          `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Path     string          `json:"path,omitempty"`
	Icon     string          `json:"icon,omitempty"`
	Order    int             `json:"order"`
	Access   rbac.MenuAccess `json:"access"`
	Children []*Node         `json:"children,omitempty"`
}
