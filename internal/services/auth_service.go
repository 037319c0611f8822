package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/dto"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/models"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/store"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrUnauthorized       = errors.New("could not validate credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Session is the result of a successful login.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type AuthService struct {
	db         *gorm.DB
	issuer     *TokenIssuer
	validator  *TokenValidator
	bcryptCost int
	now        func() time.Time

	// dummyHash is compared against on unknown-email logins.
	dummyHash []byte
}

func NewAuthService(db *gorm.DB, cfg *config.Config, issuer *TokenIssuer, validator *TokenValidator) *AuthService {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("dummy-password"), cost)
	return &AuthService{
		db:         db,
		issuer:     issuer,
		validator:  validator,
		bcryptCost: cost,
		now:        time.Now,
		dummyHash:  dummyHash,
	}
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	users := store.NewUserStore(s.db)

	if _, err := users.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:          req.Email,
		HashedPassword: string(hash),
	}
	if err := users.Create(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	slog.Info("user registered", "action", "register", "user_id", user.ID)
	return toUserResponse(&user), nil
}

// Login checks credentials and opens a new session. Unknown email and wrong
// password both return ErrInvalidCredentials after one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*Session, error) {
	user, err := store.NewUserStore(s.db).FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			slog.Info("login failed", "action", "login", "reason", "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		slog.Info("login failed", "action", "login", "reason", "bad_password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.issuer.IssueAccessToken(user.Email, 0)
	if err != nil {
		return nil, err
	}
	refreshToken, expiresAt, err := s.issuer.IssueRefreshToken(ctx, store.NewRefreshTokenStore(s.db), user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", "action", "login", "user_id", user.ID)
	return &Session{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Refresh mints a new access token for the owner of rawRefresh. The refresh
// token itself is left unchanged.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (string, error) {
	if rawRefresh == "" {
		return "", ErrUnauthorized
	}

	user, _, err := s.validator.ResolveRefreshToken(ctx, store.NewUserStore(s.db), store.NewRefreshTokenStore(s.db), rawRefresh)
	if err != nil {
		return "", err
	}
	accessToken, err := s.issuer.IssueAccessToken(user.Email, 0)
	if err != nil {
		return "", err
	}

	slog.Info("access token refreshed", "action", "refresh", "user_id", user.ID)
	return accessToken, nil
}

// Logout deletes the session for rawRefresh if there is one. It never fails.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) {
	if rawRefresh == "" {
		return
	}
	deleted, err := store.NewRefreshTokenStore(s.db).DeleteByHash(ctx, hashToken(rawRefresh))
	if err != nil {
		slog.Error("logout cleanup failed", "action", "logout", "error", err)
		return
	}
	slog.Info("user logged out", "action", "logout", "deleted", deleted)
}

// WhoAmI validates rawAccess and resolves its subject to a stored user.
func (s *AuthService) WhoAmI(ctx context.Context, rawAccess string) (*dto.UserResponse, error) {
	email, err := s.validator.ValidateAccessToken(rawAccess)
	if err != nil {
		return nil, err
	}
	user, err := store.NewUserStore(s.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("access token rejected", "reason", "unknown_subject")
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return toUserResponse(user), nil
}

// RefreshTTL is the lifetime of refresh tokens issued by Login.
func (s *AuthService) RefreshTTL() time.Duration {
	return s.issuer.RefreshTTL()
}

// DeleteUser removes the account with the given email and all its sessions.
func (s *AuthService) DeleteUser(ctx context.Context, email string) error {
	users := store.NewUserStore(s.db)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := users.Delete(ctx, user.ID); err != nil {
		return err
	}
	slog.Info("user deleted", "action", "delete_user", "user_id", user.ID)
	return nil
}

// SweepExpired deletes every refresh token that has expired.
func (s *AuthService) SweepExpired(ctx context.Context) (int64, error) {
	return store.NewRefreshTokenStore(s.db).DeleteExpired(ctx, s.now())
}

// StartSweeper runs SweepExpired every interval until done is closed.
// Correctness does not depend on it; expired tokens are also reaped on use.
func (s *AuthService) StartSweeper(interval time.Duration, done chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deleted, err := s.SweepExpired(context.Background())
				if err != nil {
					slog.Error("refresh token sweep failed", "error", err)
				} else if deleted > 0 {
					slog.Info("refresh token sweep completed", "deleted", deleted)
				}
			case <-done:
				return
			}
		}
	}()
}

func toUserResponse(user *models.User) *dto.UserResponse {
	return &dto.UserResponse{ID: user.ID, Email: user.Email}
}
