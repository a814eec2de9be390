package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts account persistence.
type RepositoryPort interface {
	InsertAccount(ctx context.Context, acc Account) (int64, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
}

// SessionPort abstracts bearer-token sessions.
type SessionPort interface {
	Create(ctx context.Context, sess shared.Session) (string, error)
	Destroy(ctx context.Context, token string) error
}

// Service coordinates authentication.
type Service struct {
	repo     RepositoryPort
	sessions SessionPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, sessions SessionPort) *Service {
	return &Service{repo: repo, sessions: sessions}
}

const minPasswordLength = 8

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password, displayName, role string) (Account, error) {
	if len(password) < minPasswordLength {
		return Account{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}
	acc := Account{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
	}
	id, err := s.repo.InsertAccount(ctx, acc)
	if err != nil {
		return Account{}, err
	}
	acc.ID = id
	acc.PasswordHash = ""
	return acc, nil
}

// Login verifies credentials and opens a session. The same error comes
// back for a missing user and a wrong password.
func (s *Service) Login(ctx context.Context, username, password string) (Account, string, error) {
	acc, err := s.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, "", ErrBadCredentials
		}
		return Account{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return Account{}, "", ErrBadCredentials
	}
	token, err := s.sessions.Create(ctx, shared.Session{
		AccountID:   acc.ID,
		DisplayName: acc.DisplayName,
		Role:        acc.Role,
	})
	if err != nil {
		return Account{}, "", err
	}
	acc.PasswordHash = ""
	return acc, token, nil
}

// Logout destroys the session behind a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// GetAccount returns one account without its password hash.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	acc.PasswordHash = ""
	return acc, nil
}
