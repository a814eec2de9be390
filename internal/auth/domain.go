package auth

import (
	"fmt"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Account is a staff login.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	Role         string
	CreatedAt    time.Time
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = fmt.Errorf("account %w", shared.ErrNotFound)
	// ErrBadCredentials indicates a failed username/password check.
	ErrBadCredentials = fmt.Errorf("invalid credentials: %w", shared.ErrUnauthorized)
	// ErrUsernameTaken indicates a duplicate username.
	ErrUsernameTaken = fmt.Errorf("username already taken: %w", shared.ErrConflict)
	// ErrWeakPassword indicates a password below the minimum length.
	ErrWeakPassword = fmt.Errorf("password must be at least 8 characters: %w", shared.ErrValidation)
)
