package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/storefront/internal/platform/db"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, `SELECT id, email, password_hash, role, is_active, created_at, updated_at
FROM users
WHERE email = $1`, normalizeEmail(email)).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return &u, nil
}

// UpsertUser creates the user or resets its password, role and active flag.
func (r *PGRepository) UpsertUser(ctx context.Context, email, passwordHash, role string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO users (email, password_hash, role, is_active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (email) DO UPDATE SET
    password_hash = EXCLUDED.password_hash,
    role = EXCLUDED.role,
    is_active = TRUE,
    updated_at = NOW()
RETURNING id`, normalizeEmail(email), passwordHash, role).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("auth: upsert user: %w", err)
	}
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Repository = (*PGRepository)(nil)
