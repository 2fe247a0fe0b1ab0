package roles

import "time"

// Role is a catalogue entry. Rank is the role's position in the built-in
// hierarchy, or -1 for custom roles.
type Role struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rank        int       `json:"rank"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HierarchyEntry describes one level of the built-in hierarchy.
type HierarchyEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}
