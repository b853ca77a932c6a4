package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/stuffr/marketplace/internal/model"
)

// TokenRepo is the per-user set of valid refresh token hashes. Every
// mutation is a single statement or a single transaction, so concurrent
// rotations of the same token cannot both succeed.
type TokenRepo struct{ DB *gorm.DB }

func NewTokenRepo(db *gorm.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Add inserts a refresh token hash for the user.
func (r *TokenRepo) Add(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	return r.DB.WithContext(ctx).Create(&model.RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
	}).Error
}

// Rotate consumes oldHash and stores newHash in one transaction. The delete
// must remove exactly one row; a second presentation of the same token
// finds nothing and gets ErrTokenNotFound.
func (r *TokenRepo) Rotate(ctx context.Context, userID, oldHash, newHash string, exp time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND token_hash = ?", userID, oldHash).Delete(&model.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrTokenNotFound
		}
		return tx.Create(&model.RefreshToken{
			UserID:    userID,
			TokenHash: newHash,
			ExpiresAt: exp.UTC(),
		}).Error
	})
}

// Remove deletes exactly the given token of the user.
func (r *TokenRepo) Remove(ctx context.Context, userID, tokenHash string) error {
	res := r.DB.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		Delete(&model.RefreshToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RemoveAllForUser revokes every session of the user.
func (r *TokenRepo) RemoveAllForUser(ctx context.Context, userID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.RefreshToken{})
	return res.RowsAffected, res.Error
}

// PurgeExpired drops hashes whose token could no longer be decoded anyway.
func (r *TokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.RefreshToken{})
	return res.RowsAffected, res.Error
}
