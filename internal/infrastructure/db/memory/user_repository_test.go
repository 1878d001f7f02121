package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacode/fiches-api/internal/core/domain"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	u, err := repo.Create(ctx, &domain.User{Username: "alice", PasswordHash: "h", Role: domain.RoleUser})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	_, err = repo.Create(ctx, &domain.User{Username: "alice", PasswordHash: "h2", Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = repo.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	repo.Remove(u.ID)
	_, err = repo.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
