package store

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/models"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, users *UserStore, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, HashedPassword: "hash"}
	require.NoError(t, users.Create(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func TestUserStore_CreateAndFind(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")

	byEmail, err := users.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	_, err = users.FindByEmail(ctx, "A@x.com")
	assert.ErrorIs(t, err, ErrNotFound, "email lookup is case-sensitive")

	_, err = users.FindByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserStore_DuplicateEmail(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)

	createUser(t, users, "a@x.com")
	err := users.Create(context.Background(), &models.User{Email: "a@x.com", HashedPassword: "other"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRefreshTokenStore_Lifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: expires}
	require.NoError(t, tokens.Create(ctx, rec))

	got, err := tokens.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.True(t, expires.Equal(got.ExpiresAt))

	n, err := tokens.DeleteByHash(ctx, "h1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = tokens.DeleteByHash(ctx, "h1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = tokens.FindByHash(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenStore_MultipleSessionsPerUser(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")
	exp := time.Now().Add(time.Hour)
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: exp}))
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h2", ExpiresAt: exp}))

	n, err := tokens.DeleteByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRefreshTokenStore_DuplicateHashRejected(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")
	exp := time.Now().Add(time.Hour)
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: exp}))
	assert.Error(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: exp}))
}

func TestRefreshTokenStore_DeleteExpired(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "past", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "now", ExpiresAt: now}))
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "future", ExpiresAt: now.Add(time.Hour)}))

	n, err := tokens.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = tokens.FindByHash(ctx, "future")
	assert.NoError(t, err)
}

func TestUserStore_DeleteCascadesTokens(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")
	other := createUser(t, users, "b@x.com")
	exp := time.Now().Add(time.Hour)
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: exp}))
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: other.ID, TokenHash: "h2", ExpiresAt: exp}))

	require.NoError(t, users.Delete(ctx, u.ID))

	_, err := tokens.FindByHash(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tokens.FindByHash(ctx, "h2")
	assert.NoError(t, err)

	assert.ErrorIs(t, users.Delete(ctx, u.ID), ErrNotFound)
}

func TestForeignKeyCascade(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserStore(db)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	u := createUser(t, users, "a@x.com")
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)}))

	// Bypass the store so only the storage-level rule applies.
	require.NoError(t, db.Exec("DELETE FROM users WHERE id = ?", u.ID).Error)

	_, err := tokens.FindByHash(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}
