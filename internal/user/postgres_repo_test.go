package user_test

import (
	"context"
	"testing"
	"time"

	"libraryapi/internal/testutil"
	"libraryapi/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo(t *testing.T) {
	pool := testutil.Postgres(t)
	repo := user.NewPostgresRepo(pool, 5*time.Second)
	ctx := context.Background()

	u := user.User{Email: "ana@example.com", PasswordHash: "hash", Role: user.RoleLibraryUser}
	require.NoError(t, repo.Create(ctx, &u))
	assert.NotEmpty(t, u.ID)

	dup := user.User{Email: "ana@example.com", PasswordHash: "hash", Role: user.RoleLibraryUser}
	assert.ErrorIs(t, repo.Create(ctx, &dup), user.ErrAlreadyExists)

	got, err := repo.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	name := "Ana"
	got, err = repo.UpdateProfile(ctx, u.ID, user.Profile{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FirstName)
	assert.Empty(t, got.LastName)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestPostgresRevocations(t *testing.T) {
	pool := testutil.Postgres(t)
	users := user.NewPostgresRepo(pool, 5*time.Second)
	repo := user.NewPostgresRevocations(pool, 5*time.Second)
	ctx := context.Background()

	u := user.User{Email: "bo@example.com", PasswordHash: "hash", Role: user.RoleLibraryUser}
	require.NoError(t, users.Create(ctx, &u))

	require.NoError(t, repo.Revoke(ctx, "jti-live", u.ID, time.Now().Add(time.Hour)))
	require.NoError(t, repo.Revoke(ctx, "jti-live", u.ID, time.Now().Add(time.Hour)), "revoking twice is a no-op")
	require.NoError(t, repo.Revoke(ctx, "jti-old", u.ID, time.Now().Add(-time.Hour)))

	revoked, err := repo.IsRevoked(ctx, "jti-live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsRevoked(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	n, err := repo.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
