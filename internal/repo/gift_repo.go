// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Gift model.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

// ListGifts returns a page of the gift catalogue in seeding order.
func ListGifts(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Gift, error) {
	var out []domain.Gift
	q := db.WithContext(ctx).Order("created_at ASC, id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetGift fetches a gift by ID, returning ErrNotFound when absent.
func GetGift(ctx context.Context, db *gorm.DB, id string) (*domain.Gift, error) {
	var g domain.Gift
	err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// IncrementPurchasedCount bumps a gift's sold counter by one, guarded so the
// counter can never pass the supply. It reports whether a row was actually
// modified; false means the gift is sold out (or missing) and the caller must
// not treat the purchase as counted.
func IncrementPurchasedCount(ctx context.Context, db *gorm.DB, giftID string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Gift{}).
		Where("id = ? AND purchased_count < supply", giftID).
		UpdateColumn("purchased_count", gorm.Expr("purchased_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
