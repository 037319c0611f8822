package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefreshTokenStore struct {
	db *gorm.DB
}

func NewRefreshTokenStore(db *gorm.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func (s *RefreshTokenStore) Create(ctx context.Context, token *models.RefreshToken) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(token).Error; err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return &token, nil
}

// DeleteByHash removes at most one row and reports how many were deleted.
func (s *RefreshTokenStore) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	result := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete refresh token: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *RefreshTokenStore) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete user refresh tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpired removes every token whose expiry is at or before cutoff.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", cutoff.UTC()).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
