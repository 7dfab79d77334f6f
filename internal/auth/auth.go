package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/attendance/internal/domain"
)

// ErrAuth is the parent of every credential error.
var ErrAuth = errors.New("authentication error")

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrAuth)
	ErrUserExists         = fmt.Errorf("%w: username already taken", ErrAuth)
	ErrEmptyCredentials   = fmt.Errorf("%w: username and password must not be empty", ErrAuth)
)

// UserStore is the part of the record store the auth service needs.
type UserStore interface {
	LoadUsers(ctx context.Context) ([]domain.User, error)
	UpdateUsers(ctx context.Context, fn func([]domain.User) ([]domain.User, error)) error
}

// Service registers and authenticates users.
type Service struct {
	store UserStore
}

// NewService returns a Service backed by store.
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// Register adds a new user with the hashed password.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrEmptyCredentials
	}
	return s.store.UpdateUsers(ctx, func(users []domain.User) ([]domain.User, error) {
		for _, u := range users {
			if u.Username == username {
				return nil, ErrUserExists
			}
		}
		return append(users, domain.User{Username: username, PasswordHash: Hash(password)}), nil
	})
}

// Authenticate reports whether a user with username exists and password matches
// its stored hash. Any number of attempts is allowed.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load users: %w", err)
	}
	hashed := Hash(password)
	for _, u := range users {
		if u.Username == username && u.PasswordHash == hashed {
			return true, nil
		}
	}
	return false, nil
}

// Login is Authenticate with a mismatch reported as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) error {
	ok, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}
