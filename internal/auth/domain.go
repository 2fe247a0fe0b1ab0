package auth

import (
	"errors"
	"time"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Credential is the login view of a user account.
type Credential struct {
	ID           string
	Username     string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
}
