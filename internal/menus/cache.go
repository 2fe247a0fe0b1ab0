package menus

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

// CachedRepository keeps recently read menus in process memory. Menu
// definitions change rarely, so single-menu lookups are served from the
// cache until the entry expires.
type CachedRepository struct {
	next  RepositoryPort
	menus *expirable.LRU[string, rbac.Menu]
}

// NewCachedRepository wraps next with an LRU of size entries living ttl.
func NewCachedRepository(next RepositoryPort, size int, ttl time.Duration) *CachedRepository {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedRepository{next: next, menus: expirable.NewLRU[string, rbac.Menu](size, nil, ttl)}
}

// ListActive always reads through and refreshes the per-menu entries.
func (c *CachedRepository) ListActive(ctx context.Context) ([]rbac.Menu, error) {
	list, err := c.next.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		c.menus.Add(m.ID, m)
	}
	return list, nil
}

// Get returns the cached menu or loads it.
func (c *CachedRepository) Get(ctx context.Context, id string) (rbac.Menu, error) {
	if m, ok := c.menus.Get(id); ok {
		return m, nil
	}
	m, err := c.next.Get(ctx, id)
	if err != nil {
		return rbac.Menu{}, err
	}
	c.menus.Add(id, m)
	return m, nil
}

// Purge drops every cached entry.
func (c *CachedRepository) Purge() {
	c.menus.Purge()
}
