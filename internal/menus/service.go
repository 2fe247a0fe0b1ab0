package menus

import (
	"context"
	"log/slog"
	"sort"

	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

// RepositoryPort is the catalogue the service reads from.
type RepositoryPort interface {
	ListActive(ctx context.Context) ([]rbac.Menu, error)
	Get(ctx context.Context, id string) (rbac.Menu, error)
}

// MemoStore persists computed menu access per user, scoped to the snapshot
// version the access was computed against.
type MemoStore interface {
	Store(ctx context.Context, userID, version string, entries map[string]rbac.MenuAccess) error
}

// Service builds the sidebar for a session user.
type Service struct {
	repo     RepositoryPort
	memo     MemoStore
	recorder rbac.Recorder
	logger   *slog.Logger
}

// NewService constructs the menu service. memo and recorder may be nil.
func NewService(repo RepositoryPort, memo MemoStore, recorder rbac.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, memo: memo, recorder: recorder, logger: logger}
}

// Tree returns the menus p can view, nested under their parents. A hidden
// parent hides its whole subtree.
func (s *Service) Tree(ctx context.Context, p *rbac.Principal) ([]*Node, error) {
	catalogue, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	computed := make(map[string]rbac.MenuAccess)
	nodes := make(map[string]*Node, len(catalogue))
	for _, menu := range catalogue {
		access, decision := rbac.CheckMenuAccess(p, menu)
		s.record(decision)
		if decision.Rule != rbac.RuleMenuCache && menu.ID != "" {
			computed[menu.ID] = access
		}
		if !access.CanView {
			continue
		}
		nodes[menu.ID] = &Node{
			ID:     menu.ID,
			Code:   menu.Code,
			Name:   menu.Name,
			Path:   menu.Path,
			Icon:   menu.Icon,
			Order:  menu.Order,
			Access: access,
		}
	}
	s.remember(ctx, p, computed)

	parents := make(map[string]string, len(catalogue))
	for _, menu := range catalogue {
		parents[menu.ID] = menu.ParentID
	}

	roots := make([]*Node, 0)
	for _, menu := range catalogue {
		node, ok := nodes[menu.ID]
		if !ok {
			continue
		}
		if menu.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		if !visibleChain(menu.ParentID, parents, nodes) {
			continue
		}
		parent := nodes[menu.ParentID]
		parent.Children = append(parent.Children, node)
	}
	sortNodes(roots)
	return roots, nil
}

// Access evaluates a single menu for p.
func (s *Service) Access(ctx context.Context, p *rbac.Principal, menuID string) (rbac.MenuAccess, rbac.Decision, error) {
	menu, err := s.repo.Get(ctx, menuID)
	if err != nil {
		return rbac.MenuAccess{}, rbac.Decision{}, err
	}
	access, decision := rbac.CheckMenuAccess(p, menu)
	s.record(decision)
	if decision.Rule != rbac.RuleMenuCache {
		s.remember(ctx, p, map[string]rbac.MenuAccess{menu.ID: access})
	}
	return access, decision, nil
}

func (s *Service) remember(ctx context.Context, p *rbac.Principal, entries map[string]rbac.MenuAccess) {
	if s.memo == nil || p == nil || len(entries) == 0 {
		return
	}
	if err := s.memo.Store(ctx, p.ID(), p.Version(), entries); err != nil {
		s.logger.Warn("store menu access memo", slog.String("user", p.ID()), slog.Any("error", err))
	}
}

func (s *Service) record(d rbac.Decision) {
	if s.recorder != nil {
		s.recorder.RecordDecision("menu", d)
	}
}

// visibleChain reports whether every ancestor starting at id is visible.
// Cycles and dangling parents count as hidden.
func visibleChain(id string, parents map[string]string, nodes map[string]*Node) bool {
	seen := make(map[string]struct{})
	for id != "" {
		if _, loop := seen[id]; loop {
			return false
		}
		seen[id] = struct{}{}
		if _, ok := nodes[id]; !ok {
			return false
		}
		id = parents[id]
	}
	return true
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}
