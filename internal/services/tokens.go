package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/models"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	refreshTokenBytes = 32
)

// signingKey is the process-wide HMAC secret and algorithm. It is read-only
// after construction.
type signingKey struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

func newSigningKey(cfg *config.Config) (signingKey, error) {
	if cfg.JWTSecret == "" {
		return signingKey{}, errors.New("jwt secret is not configured")
	}
	alg := cfg.JWTAlgorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return signingKey{}, fmt.Errorf("jwt algorithm %q is not an HMAC algorithm", alg)
	}
	return signingKey{secret: []byte(cfg.JWTSecret), method: method}, nil
}

// TokenIssuer mints signed access tokens and stored refresh tokens.
type TokenIssuer struct {
	key        signingKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(cfg *config.Config) (*TokenIssuer, error) {
	key, err := newSigningKey(cfg)
	if err != nil {
		return nil, err
	}
	i := &TokenIssuer{
		key:        key,
		accessTTL:  cfg.JWTAccessExpiry,
		refreshTTL: cfg.JWTRefreshExpiry,
		now:        time.Now,
	}
	if i.accessTTL <= 0 {
		i.accessTTL = DefaultAccessTTL
	}
	if i.refreshTTL <= 0 {
		i.refreshTTL = DefaultRefreshTTL
	}
	return i, nil
}

// IssueAccessToken signs {sub, iat, exp, jti}. A non-positive ttl selects
// the configured access lifetime. exp is truncated to whole seconds, so the
// token can lapse up to a second before ttl has fully elapsed.
func (i *TokenIssuer) IssueAccessToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = i.accessTTL
	}
	now := i.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(i.key.method, claims).SignedString(i.key.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// IssueRefreshToken stores a new session for userID and returns the raw
// token. Only its hash is persisted, so the raw value cannot be recovered.
func (i *TokenIssuer) IssueRefreshToken(ctx context.Context, tokens *store.RefreshTokenStore, userID uint) (string, time.Time, error) {
	rawBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	rawToken := base64.RawURLEncoding.EncodeToString(rawBytes)
	expiresAt := i.now().Add(i.refreshTTL).UTC()

	record := models.RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: expiresAt,
	}
	if err := tokens.Create(ctx, &record); err != nil {
		return "", time.Time{}, err
	}
	return rawToken, expiresAt, nil
}

// RefreshTTL is the lifetime given to new refresh tokens.
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// TokenValidator checks access tokens and resolves refresh tokens. Every
// failure maps to ErrUnauthorized.
type TokenValidator struct {
	key    signingKey
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenValidator(cfg *config.Config) (*TokenValidator, error) {
	key, err := newSigningKey(cfg)
	if err != nil {
		return nil, err
	}
	v := &TokenValidator{key: key, now: time.Now}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v, nil
}

// ValidateAccessToken verifies signature and expiry and returns the subject.
// The subject is not checked against the user table here.
func (v *TokenValidator) ValidateAccessToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key.secret, nil
	})
	if err != nil {
		slog.Debug("access token rejected", "error", err)
		return "", ErrUnauthorized
	}
	if claims.Subject == "" {
		slog.Debug("access token rejected", "error", "missing subject")
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// ResolveRefreshToken maps a raw refresh token to its owner. An expired
// token is deleted before ErrUnauthorized is returned.
func (v *TokenValidator) ResolveRefreshToken(ctx context.Context, users *store.UserStore, tokens *store.RefreshTokenStore, raw string) (*models.User, *models.RefreshToken, error) {
	if raw == "" {
		return nil, nil, ErrUnauthorized
	}
	tokenHash := hashToken(raw)

	record, err := tokens.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("refresh token rejected", "action", "refresh", "reason", "not_found")
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}

	// Expiry is written in UTC; naive legacy values come back from the
	// drivers as UTC wall clock, so UTC() yields the stored instant.
	if !v.now().Before(record.ExpiresAt.UTC()) {
		if _, err := tokens.DeleteByHash(ctx, tokenHash); err != nil {
			return nil, nil, err
		}
		slog.Info("refresh token rejected", "action", "refresh", "reason", "expired", "user_id", record.UserID)
		return nil, nil, ErrUnauthorized
	}

	user, err := users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("refresh token rejected", "action", "refresh", "reason", "dangling_owner", "user_id", record.UserID)
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}
	return user, record, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
