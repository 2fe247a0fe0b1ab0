package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Record(ctx context.Context, userID string) (rbac.User, error)
	ResourceData(ctx context.Context, userID string) (*rbac.ResourceData, error)
	Get(ctx context.Context, userID string) (Summary, error)
	List(ctx context.Context, filters shared.ListFilters) ([]Summary, int, error)
	ReplaceRoles(ctx context.Context, userID string, roles []RoleAssignment) error
}

// SessionRefresher schedules a snapshot reload after access changes.
type SessionRefresher interface {
	EnqueueSessionRefresh(ctx context.Context, userID string) error
}

// SnapshotInvalidator drops a cached snapshot immediately.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo        RepositoryPort
	refresher   SessionRefresher
	invalidator SnapshotInvalidator
	audit       AuditRecorder
	logger      *slog.Logger
}

// ServiceOption customises Service.
type ServiceOption func(*Service)

// WithSessionRefresher enqueues snapshot refreshes after role changes.
func WithSessionRefresher(refresher SessionRefresher) ServiceOption {
	return func(s *Service) { s.refresher = refresher }
}

// WithSnapshotInvalidator drops cached snapshots synchronously after role changes.
func WithSnapshotInvalidator(invalidator SnapshotInvalidator) ServiceOption {
	return func(s *Service) { s.invalidator = invalidator }
}

// WithAudit records role changes.
func WithAudit(audit AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record loads the access record of an active user.
func (s *Service) Record(ctx context.Context, userID string) (rbac.User, error) {
	return s.repo.Record(ctx, userID)
}

// ResourceData returns scope attributes of a user record.
func (s *Service) ResourceData(ctx context.Context, userID string) (*rbac.ResourceData, error) {
	return s.repo.ResourceData(ctx, userID)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, userID string) (Summary, error) {
	return s.repo.Get(ctx, userID)
}

// List returns a page of accounts.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Summary, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Summary{}
	}
	return items, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// AssignRoles replaces the user's role set. Exactly one role must be primary.
// Cached sessions of the user are invalidated and a refresh is scheduled.
func (s *Service) AssignRoles(ctx context.Context, actorID, userID string, roles []RoleAssignment) ([]RoleAssignment, error) {
	normalized, err := normalizeAssignments(roles)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceRoles(ctx, userID, normalized); err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("user", userID), slog.String("actor", actorID))
	if s.audit != nil {
		codes := make([]string, len(normalized))
		for i, role := range normalized {
			codes[i] = role.Code
		}
		entry := shared.AuditLog{ActorID: actorID, Action: "roles.assign", Entity: "user", EntityID: userID, Meta: map[string]any{"roles": codes}}
		if err := s.audit.Record(ctx, entry); err != nil {
			logger.Warn("audit role assignment", slog.Any("error", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, userID); err != nil {
			logger.Warn("invalidate snapshot", slog.Any("error", err))
		}
	}
	if s.refresher != nil {
		if err := s.refresher.EnqueueSessionRefresh(ctx, userID); err != nil {
			logger.Warn("enqueue session refresh", slog.Any("error", err))
		}
	}
	logger.Info("roles assigned", slog.Int("count", len(normalized)))
	return normalized, nil
}

func normalizeAssignments(roles []RoleAssignment) ([]RoleAssignment, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("users: at least one role required: %w", httpx.ErrValidation)
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]RoleAssignment, 0, len(roles))
	primaries := 0
	for _, role := range roles {
		code := strings.ToLower(strings.TrimSpace(role.Code))
		if code == "" {
			return nil, fmt.Errorf("users: empty role code: %w", httpx.ErrValidation)
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("users: duplicate role %q: %w", code, httpx.ErrValidation)
		}
		seen[code] = struct{}{}
		if role.IsPrimary {
			primaries++
		}
		out = append(out, RoleAssignment{Code: code, IsPrimary: role.IsPrimary})
	}
	if primaries != 1 {
		return nil, fmt.Errorf("users: exactly one primary role required, got %d: %w", primaries, httpx.ErrValidation)
	}
	return out, nil
}
