package roles

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	SetPermissions(ctx context.Context, code string, perms []string) ([]string, error)
}

// SessionRefresher schedules snapshot reloads for affected users.
type SessionRefresher interface {
	EnqueueSessionRefresh(ctx context.Context, userID string) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role business logic.
type Service struct {
	repo      RepositoryPort
	refresher SessionRefresher
	audit     AuditRecorder
	logger    *slog.Logger
}

// ServiceOption customises Service.
type ServiceOption func(*Service)

// WithAudit records role definition changes.
func WithAudit(audit AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

// NewService builds Service instance. refresher may be nil.
func NewService(repo RepositoryPort, refresher SessionRefresher, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, refresher: refresher, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListRoles returns all roles ordered from most to least privileged, custom
// roles last.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Rank = rbac.RoleIndex(roles[i].Code)
	}
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Rank != roles[j].Rank {
			return roles[i].Rank > roles[j].Rank
		}
		return roles[i].Code < roles[j].Code
	})
	return roles, nil
}

// CreateRole validates and inserts a role. The display name defaults to the
// title-cased code.
func (s *Service) CreateRole(ctx context.Context, code, name, description string) (Role, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if !codePattern.MatchString(code) {
		return Role{}, fmt.Errorf("roles: invalid code %q: %w", code, httpx.ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DisplayName(code)
	}
	role, err := s.repo.CreateRole(ctx, Role{Code: code, Name: name, Description: strings.TrimSpace(description)})
	if err != nil {
		return Role{}, err
	}
	role.Rank = rbac.RoleIndex(code)
	s.record(ctx, "role.create", code, map[string]any{"name": role.Name})
	return role, nil
}

// SetPermissions replaces a role's permissions and refreshes every holder's session.
func (s *Service) SetPermissions(ctx context.Context, code string, perms []string) ([]string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	unique := make(map[string]struct{}, len(perms))
	cleaned := make([]string, 0, len(perms))
	for _, perm := range perms {
		if _, ok := rbac.ParsePermission(perm); !ok {
			return nil, fmt.Errorf("roles: malformed permission %q: %w", perm, httpx.ErrValidation)
		}
		if _, dup := unique[perm]; dup {
			continue
		}
		unique[perm] = struct{}{}
		cleaned = append(cleaned, perm)
	}
	sort.Strings(cleaned)

	holders, err := s.repo.SetPermissions(ctx, code, cleaned)
	if err != nil {
		return nil, err
	}
	if s.refresher != nil {
		for _, userID := range holders {
			if err := s.refresher.EnqueueSessionRefresh(ctx, userID); err != nil {
				s.logger.Warn("enqueue session refresh", slog.String("user", userID), slog.Any("error", err))
			}
		}
	}
	s.record(ctx, "role.permissions", code, map[string]any{"permissions": cleaned, "holders": len(holders)})
	s.logger.Info("role permissions replaced", slog.String("role", code), slog.Int("permissions", len(cleaned)), slog.Int("holders", len(holders)))
	return cleaned, nil
}

func (s *Service) record(ctx context.Context, action, code string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{Action: action, Entity: "role", EntityID: code, Meta: meta}
	if p := rbac.PrincipalFromContext(ctx); p != nil {
		entry.ActorID = p.ID()
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit role change", slog.String("role", code), slog.Any("error", err))
	}
}

// Hierarchy returns the built-in roles from most to least privileged.
func (s *Service) Hierarchy() []HierarchyEntry {
	codes := rbac.RoleHierarchy()
	out := make([]HierarchyEntry, 0, len(codes))
	for i := len(codes) - 1; i >= 0; i-- {
		out = append(out, HierarchyEntry{Code: codes[i], Name: DisplayName(codes[i]), Rank: i})
	}
	return out
}

// DisplayName renders a role code for humans: "kepala_cabang" -> "Kepala Cabang".
func DisplayName(code string) string {
	// Casers are stateful and must not be shared between goroutines.
	return cases.Title(language.Indonesian).String(strings.ReplaceAll(code, "_", " "))
}
