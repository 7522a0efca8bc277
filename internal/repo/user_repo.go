// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

// GetUserByTelegramID fetches a user by Telegram id, returning ErrNotFound
// when absent.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row.
func CreateUser(ctx context.Context, db *gorm.DB, telegramID int64, firstName, lastName string, isPremium bool, avatarURL string) (*domain.User, error) {
	u := &domain.User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		FirstName:  firstName,
		LastName:   lastName,
		IsPremium:  isPremium,
		AvatarURL:  avatarURL,
		CreatedAt:  time.Now().UTC(),
	}
	return u, db.WithContext(ctx).Create(u).Error
}

// UpdateUserProfile applies changed profile fields. It reports whether a row
// was modified so the caller knows when to refresh its cache entry.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, telegramID int64, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementReceivedCount bumps a user's received-gifts counter by one.
func IncrementReceivedCount(ctx context.Context, db *gorm.DB, telegramID int64) error {
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("telegram_id = ?", telegramID).
		UpdateColumn("received_count", gorm.Expr("received_count + 1")).Error
}

// CountUsersAbove returns how many users received strictly more gifts than
// the given count. Leaderboard place is this number plus one.
func CountUsersAbove(ctx context.Context, db *gorm.DB, receivedCount int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("received_count > ?", receivedCount).
		Count(&total).Error
	return total, err
}

// ListLeaders returns users with at least one received gift, most first.
func ListLeaders(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("received_count <> 0").
		Order("received_count DESC, id ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
