package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/dto"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/store"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type authFixture struct {
	db    *gorm.DB
	svc   *AuthService
	clock *fakeClock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	clock := &fakeClock{t: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	issuer, validator := newTokenPair(t, clock)
	svc := NewAuthService(db, cfg, issuer, validator)
	svc.now = clock.Now
	return &authFixture{db: db, svc: svc, clock: clock}
}

func (f *authFixture) register(t *testing.T, email, password string) *dto.UserResponse {
	t.Helper()
	user, err := f.svc.Register(context.Background(), &dto.RegisterRequest{Email: email, Password: password})
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)

	user := f.register(t, "a@x.com", "pw1")
	assert.NotZero(t, user.ID)
	assert.Equal(t, "a@x.com", user.Email)

	stored, err := store.NewUserStore(f.db).FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.HashedPassword)
	assert.NotEmpty(t, stored.HashedPassword)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")

	_, err := f.svc.Register(context.Background(), &dto.RegisterRequest{Email: "a@x.com", Password: "other"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	// Email comparison is case-sensitive.
	f.register(t, "A@x.com", "pw1")
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")

	session, err := f.svc.Login(context.Background(), &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, f.clock.t.Add(DefaultRefreshTTL), session.RefreshExpiresAt)

	me, err := f.svc.WhoAmI(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", me.Email)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")

	_, errWrongPassword := f.svc.Login(context.Background(), &dto.LoginRequest{Email: "a@x.com", Password: "nope"})
	_, errUnknownEmail := f.svc.Login(context.Background(), &dto.LoginRequest{Email: "b@x.com", Password: "pw1"})

	assert.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknownEmail, ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword.Error(), errUnknownEmail.Error())
}

func TestNewAuthService_PrecomputesDummyHash(t *testing.T) {
	f := newAuthFixture(t)

	require.NotEmpty(t, f.svc.dummyHash, "ready before the first unknown-email login")
	cost, err := bcrypt.Cost(f.svc.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, testutil.Config().BcryptCost, cost, "same cost as real hashes")

	before := string(f.svc.dummyHash)
	_, err = f.svc.Login(context.Background(), &dto.LoginRequest{Email: "nobody@x.com", Password: "pw1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, before, string(f.svc.dummyHash))
}

func TestLogin_ConcurrentSessions(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")
	ctx := context.Background()

	s1, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	s2, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.NotEqual(t, s1.RefreshToken, s2.RefreshToken)

	f.svc.Logout(ctx, s1.RefreshToken)

	_, err = f.svc.Refresh(ctx, s2.RefreshToken)
	assert.NoError(t, err, "logging out one device leaves the other session alive")
}

func TestRefresh(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")
	ctx := context.Background()

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	access, err := f.svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.AccessToken, access)

	me, err := f.svc.WhoAmI(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", me.Email)

	// The same refresh token keeps working: no rotation.
	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.NoError(t, err)
	_, err = store.NewRefreshTokenStore(f.db).FindByHash(ctx, hashToken(session.RefreshToken))
	assert.NoError(t, err)
}

func TestRefresh_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Refresh(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnauthorized)

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	f.clock.Advance(DefaultRefreshTTL)
	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = store.NewRefreshTokenStore(f.db).FindByHash(ctx, hashToken(session.RefreshToken))
	assert.ErrorIs(t, err, store.ErrNotFound, "expired token is reaped on detection")
}

func TestLogout_Idempotent(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")
	ctx := context.Background()

	f.svc.Logout(ctx, "")
	f.svc.Logout(ctx, "unknown")

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	f.svc.Logout(ctx, session.RefreshToken)
	f.svc.Logout(ctx, session.RefreshToken)

	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWhoAmI_DeletedUser(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")
	ctx := context.Background()

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(ctx, "a@x.com"))

	_, err = f.svc.WhoAmI(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "a valid signature alone does not authorize")

	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "sessions are deleted with the user")

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, "a@x.com"), ErrUserNotFound)
}

func TestSweepExpired(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "pw1")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	live, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	f.clock.Advance(DefaultRefreshTTL - time.Minute)
	deleted, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = f.svc.Refresh(ctx, live.RefreshToken)
	assert.NoError(t, err)
}
