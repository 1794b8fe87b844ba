package auth

import (
	"errors"
	"time"
)

// RoleAdmin is the only role allowed to hold tokens.
const RoleAdmin = "ADMIN"

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrNotFound           = errors.New("auth: user not found")
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token is an issued bearer token.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
