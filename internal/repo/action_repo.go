// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// action ledger: inserts, the guarded purchase-linking update, and the
// point-lookups and feeds used by the API layer.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

// CreateAction inserts a new ledger entry. target may be nil (an unsent
// purchase) or reference the action this one settles.
func CreateAction(ctx context.Context, db *gorm.DB, giftID string, kind int, actorTelegramID int64, target *string) (*domain.Action, error) {
	a := &domain.Action{
		ID:              uuid.NewString(),
		GiftID:          giftID,
		ActorTelegramID: actorTelegramID,
		Kind:            kind,
		TargetActionID:  target,
		InsertedAt:      time.Now().UTC(),
	}
	return a, db.WithContext(ctx).Create(a).Error
}

// GetAction fetches an action by ID, returning ErrNotFound when absent.
func GetAction(ctx context.Context, db *gorm.DB, id string) (*domain.Action, error) {
	var a domain.Action
	err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LinkPurchase sets target_action_id on an unlinked purchase. The predicate
// matches only an unsent purchase row, so under concurrent transfers exactly
// one caller observes true; the rest must abort their transaction.
func LinkPurchase(ctx context.Context, db *gorm.DB, purchaseActionID, offerActionID string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Action{}).
		Where("id = ? AND kind = ? AND target_action_id IS NULL", purchaseActionID, domain.ActionPurchase).
		Update("target_action_id", offerActionID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountOffers uses a raw COUNT so a missing table surfaces as an error.
// The offer count plus one is the rank of the next completed transfer.
func CountOffers(ctx context.Context, db *gorm.DB, giftID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM actions WHERE gift_id = ? AND kind = ?", giftID, domain.ActionOffer).
		Scan(&total).Error
	return total, err
}

// ListGiftActions returns the public activity feed for a gift: purchases and
// offers, newest first. Claims are omitted (they mirror their offer).
func ListGiftActions(ctx context.Context, db *gorm.DB, giftID string, offset, limit int) ([]domain.Action, error) {
	var out []domain.Action
	err := db.WithContext(ctx).
		Where("gift_id = ? AND kind <> ?", giftID, domain.ActionClaim).
		Order("inserted_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUnsentPurchases returns a user's purchases that have not been handed
// over yet (no forward link), newest first.
func ListUnsentPurchases(ctx context.Context, db *gorm.DB, actorTelegramID int64, offset, limit int) ([]domain.Action, error) {
	var out []domain.Action
	err := db.WithContext(ctx).
		Where("kind = ? AND actor_telegram_id = ? AND target_action_id IS NULL", domain.ActionPurchase, actorTelegramID).
		Order("inserted_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUserActions returns every ledger entry performed by a user, newest first.
func ListUserActions(ctx context.Context, db *gorm.DB, actorTelegramID int64, offset, limit int) ([]domain.Action, error) {
	var out []domain.Action
	err := db.WithContext(ctx).
		Where("actor_telegram_id = ?", actorTelegramID).
		Order("inserted_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ListReceivedClaims returns the claim actions performed by a user, i.e. the
// gifts in their collection, newest first.
func ListReceivedClaims(ctx context.Context, db *gorm.DB, actorTelegramID int64, offset, limit int) ([]domain.Action, error) {
	var out []domain.Action
	err := db.WithContext(ctx).
		Where("kind = ? AND actor_telegram_id = ?", domain.ActionClaim, actorTelegramID).
		Order("inserted_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
