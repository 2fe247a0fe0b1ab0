package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash keeps unknown usernames on the same bcrypt cost as real ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("samudra-dummy-password"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates username/password credentials. Unknown, inactive and
// mismatched accounts all yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Credential, error) {
	cred, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !cred.IsActive {
		return nil, ErrInvalidCredentials
	}
	return cred, nil
}

// RecordLogin stamps a successful login.
func (s *Service) RecordLogin(ctx context.Context, userID string) error {
	return s.repo.TouchLogin(ctx, userID)
}
