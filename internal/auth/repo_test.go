package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGRepositoryFindByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM users`).
		WithArgs("admin@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}).
			AddRow(int64(1), "admin@example.com", "hash", RoleAdmin, true, now, now))
	mock.ExpectQuery(`FROM users`).
		WithArgs("ghost@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}))

	repo := NewRepository(mock)
	u, err := repo.FindByEmail(context.Background(), "  Admin@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	_, err = repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepositoryUpsertUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ON CONFLICT \(email\) DO UPDATE`).
		WithArgs("admin@example.com", "hash", RoleAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := NewRepository(mock).UpsertUser(context.Background(), "ADMIN@example.com", "hash", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
