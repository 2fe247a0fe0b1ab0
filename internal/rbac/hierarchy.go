package rbac

import "strings"

// Role codes of the Samudra organisation, least to most privileged.
const (
	RoleKenek         = "kenek"
	RoleSupir         = "supir"
	RoleChecker       = "checker"
	RoleStaffGudang   = "staff_gudang"
	RoleStaff         = "staff"
	RoleKasir         = "kasir"
	RoleStaffKeuangan = "staff_keuangan"
	RoleKepalaGudang  = "kepala_gudang"
	RoleKepalaCabang  = "kepala_cabang"
	RoleManager       = "manager"
	RoleAdmin         = "admin"
	RoleDirektur      = "direktur"
)

var hierarchy = []string{
	RoleKenek,
	RoleSupir,
	RoleChecker,
	RoleStaffGudang,
	RoleStaff,
	RoleKasir,
	RoleStaffKeuangan,
	RoleKepalaGudang,
	RoleKepalaCabang,
	RoleManager,
	RoleAdmin,
	RoleDirektur,
}

var hierarchyIndex = func() map[string]int {
	idx := make(map[string]int, len(hierarchy))
	for i, code := range hierarchy {
		idx[code] = i
	}
	return idx
}()

// RoleHierarchy returns the role codes ordered from least to most privileged.
func RoleHierarchy() []string {
	out := make([]string, len(hierarchy))
	copy(out, hierarchy)
	return out
}

// RoleIndex returns the rank of code in the hierarchy, or -1 when unknown.
func RoleIndex(code string) int {
	if i, ok := hierarchyIndex[normalizeRoleCode(code)]; ok {
		return i
	}
	return -1
}

func normalizeRoleCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
