package branches

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

// RepositoryPort is the persistence the service depends on.
type RepositoryPort interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error)
	Get(ctx context.Context, id string) (Branch, error)
	Create(ctx context.Context, b Branch) (Branch, error)
	Update(ctx context.Context, id string, form BranchForm) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes branch operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	logger *slog.Logger
	newID  func() string
}

// ServiceOption customises Service.
type ServiceOption func(*Service)

// WithAudit records branch writes.
func WithAudit(audit AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

// NewService constructs the service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger, newID: func() string { return uuid.NewString() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a page of branches.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Branch, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Branch{}
	}
	return items, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one branch.
func (s *Service) Get(ctx context.Context, id string) (Branch, error) {
	if strings.TrimSpace(id) == "" {
		return Branch{}, fmt.Errorf("branch id: %w", httpx.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// ResourceData describes a branch for branch-scoped checks.
func (s *Service) ResourceData(ctx context.Context, id string) (*rbac.ResourceData, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rbac.ResourceData{ID: b.ID, CabangID: b.ID}, nil
}

// Create registers a new branch.
func (s *Service) Create(ctx context.Context, form BranchForm) (Branch, error) {
	form = normalize(form)
	if form.Code == "" || form.Name == "" {
		return Branch{}, fmt.Errorf("branch code and name: %w", httpx.ErrValidation)
	}
	created, err := s.repo.Create(ctx, Branch{ID: s.newID(), Code: form.Code, Name: form.Name, Address: form.Address})
	if err != nil {
		return Branch{}, err
	}
	s.record(ctx, "branch.create", created.ID, map[string]any{"code": created.Code})
	s.logger.Info("branch created", slog.String("branch", created.ID), slog.String("code", created.Code))
	return created, nil
}

// Update rewrites a branch.
func (s *Service) Update(ctx context.Context, id string, form BranchForm) error {
	form = normalize(form)
	if form.Code == "" || form.Name == "" {
		return fmt.Errorf("branch code and name: %w", httpx.ErrValidation)
	}
	if err := s.repo.Update(ctx, id, form); err != nil {
		return err
	}
	s.record(ctx, "branch.update", id, map[string]any{"code": form.Code, "name": form.Name})
	return nil
}

func (s *Service) record(ctx context.Context, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{Action: action, Entity: "branch", EntityID: id, Meta: meta}
	if p := rbac.PrincipalFromContext(ctx); p != nil {
		entry.ActorID = p.ID()
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit branch write", slog.String("branch", id), slog.Any("error", err))
	}
}

func normalize(form BranchForm) BranchForm {
	form.Code = strings.ToUpper(strings.TrimSpace(form.Code))
	form.Name = strings.TrimSpace(form.Name)
	form.Address = strings.TrimSpace(form.Address)
	return form
}
