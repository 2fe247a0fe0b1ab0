package shared

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: DefaultLimit, Total: 45, TotalPages: 3}, p)
}

func TestParseListFilters(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/users?page=3&limit=500&search=+budi+&sort=name&dir=DESC&cabang=7", nil)
	f := ParseListFilters(req)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, "budi", f.Search)
	assert.Equal(t, "desc", f.SortDir)
	assert.Equal(t, "7", f.CabangID)
	assert.Equal(t, 2*MaxLimit, f.Offset())

	defaults := ParseListFilters(httptest.NewRequest("GET", "/api/users", nil))
	assert.Equal(t, ListFilters{Page: 1, Limit: DefaultLimit, SortDir: "asc"}, defaults)
	assert.Equal(t, 0, defaults.Offset())
}
