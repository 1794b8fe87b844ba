package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenStore) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || user.Role != RoleAdmin {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Token{}, err
	}
	return s.tokens.Issue(ctx, Principal{UserID: user.ID, Email: user.Email, Role: user.Role})
}

// Authorize resolves a bearer token.
func (s *Service) Authorize(ctx context.Context, token string) (*Principal, error) {
	return s.tokens.Lookup(ctx, token)
}

// Logout revokes a bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
