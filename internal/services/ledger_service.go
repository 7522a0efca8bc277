// Package services – LedgerService
//
// This file implements the action ledger: creating purchase entries, settling
// custody transfers as an atomic three-action cycle, and answering the
// memoized availability/rank query. The transfer state machine per purchase
// is Unsent (no forward link) → Linked (link set exactly once, terminal); the
// guarded update in repo.LinkPurchase is what enforces the "exactly once".
//
// Observability: the settlement path is OpenTelemetry-instrumented; spans
// carry gift and action identifiers.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/1thousandframework/go-gift-backend/internal/bot"
	"github.com/1thousandframework/go-gift-backend/internal/cache"
	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/locale"
	"github.com/1thousandframework/go-gift-backend/internal/repo"
)

// LedgerService creates and links ledger actions. All multi-step writes run
// in a single transaction; a partially built chain is never visible.
type LedgerService struct {
	DB    *gorm.DB
	Cache *cache.Inventory

	// Notifier delivers the transfer notices to both parties; optional (nil
	// disables notifications, used by tests).
	Notifier Notifier
	// Hostname builds the web-app links inside notifications.
	Hostname string
}

// RecordPurchase appends an unsent purchase action for (gift, buyer).
func (s *LedgerService) RecordPurchase(ctx context.Context, giftID string, buyerID int64) (*domain.Action, error) {
	return repo.CreateAction(ctx, s.DB, giftID, domain.ActionPurchase, buyerID, nil)
}

// RecordTransfer settles a custody transfer. Within one transaction it
// inserts Claim(receiver → purchase), inserts Offer(buyer → claim), and links
// the original purchase to the offer. If the purchase is already linked the
// guarded update affects zero rows and the whole unit rolls back with
// ErrAlreadyClaimed — this is the mechanism preventing a double claim.
//
// The receiver's received-count is incremented in the same transaction; the
// cached copy is updated only after commit.
func (s *LedgerService) RecordTransfer(ctx context.Context, receiverID, buyerID int64, giftID, purchaseActionID string) error {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "RecordTransfer",
		trace.WithAttributes(
			attribute.String("gift.id", giftID),
			attribute.String("purchase.id", purchaseActionID),
		),
	)
	defer span.End()

	var rank int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := repo.CreateAction(ctx, tx, giftID, domain.ActionClaim, receiverID, &purchaseActionID)
		if err != nil {
			// The sparse unique index over target_action_id refuses a second
			// claim against the same purchase.
			if repo.IsDuplicate(err) {
				return ErrAlreadyClaimed
			}
			return err
		}
		offer, err := repo.CreateAction(ctx, tx, giftID, domain.ActionOffer, buyerID, &claim.ID)
		if err != nil {
			return err
		}
		linked, err := repo.LinkPurchase(ctx, tx, purchaseActionID, offer.ID)
		if err != nil {
			return err
		}
		if !linked {
			return ErrAlreadyClaimed
		}
		if err := repo.IncrementReceivedCount(ctx, tx, receiverID); err != nil {
			return err
		}
		// The offer count inside the transaction includes the offer just
		// written, so it is this transfer's copy number.
		rank, err = repo.CountOffers(ctx, tx, giftID)
		return err
	})
	if err != nil {
		return err
	}

	s.Cache.StoreRank(purchaseActionID, rank)
	s.Cache.MutateUser(receiverID, func(u *domain.User) { u.ReceivedCount++ })
	return nil
}

// ClaimGift redeems a claim link on behalf of receiver. It validates that
// the purchase exists and is still unsent, settles the transfer, and then
// notifies both parties. Racing claims on the same purchase resolve to
// exactly one winner; losers observe ErrAlreadyClaimed.
func (s *LedgerService) ClaimGift(ctx context.Context, receiver *domain.User, purchaseActionID, lang string) (*domain.Action, error) {
	action, err := repo.GetAction(ctx, s.DB, purchaseActionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}
	if action.TargetActionID != nil {
		return nil, ErrAlreadyClaimed
	}

	gift, err := repo.GetGift(ctx, s.DB, action.GiftID)
	if err != nil {
		return nil, err
	}
	sender, err := repo.GetUserByTelegramID(ctx, s.DB, action.ActorTelegramID)
	if err != nil {
		return nil, err
	}

	if err := s.RecordTransfer(ctx, receiver.TelegramID, sender.TelegramID, gift.ID, action.ID); err != nil {
		return nil, err
	}

	if s.Notifier != nil {
		opts := &bot.SendOptions{
			ParseMode:   "HTML",
			ReplyMarkup: bot.WebAppKeyboard(locale.T(lang, "open_app"), "https://"+s.Hostname),
		}
		senderText := "👌 " + locale.T(lang, "gift_received_notify",
			htmlBold(fullName(receiver.FirstName, receiver.LastName)), htmlBold(gift.Name))
		if _, nerr := s.Notifier.SendText(ctx, sender.TelegramID, senderText, opts); nerr != nil {
			log.Error().Err(nerr).Int64("recipient", sender.TelegramID).Msg("transfer notification failed")
		}
		receiverText := "⚡️ " + locale.T(lang, "gift_activated_notify",
			htmlBold(gift.Name), htmlBold(fullName(sender.FirstName, sender.LastName)))
		if _, nerr := s.Notifier.SendText(ctx, receiver.TelegramID, receiverText, opts); nerr != nil {
			log.Error().Err(nerr).Int64("recipient", receiver.TelegramID).Msg("transfer notification failed")
		}
	}

	action.Gift = gift
	action.Actor = sender
	return action, nil
}

func fullName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}

func htmlBold(s string) string { return "<b>" + s + "</b>" }

// Rank answers "what numbered copy of this gift did this purchase settle"
// (e.g. #42 of 10000). Settled transfers memoize their rank at settlement
// time and the value never moves afterwards. An unsent purchase gets the
// prospective number the next completed transfer would take, which keeps
// shifting until the purchase is handed over.
//
// After a restart the memo for old transfers is rebuilt from the current
// offer count, which may have grown since; accepted best-effort drift.
func (s *LedgerService) Rank(ctx context.Context, purchaseActionID string) (int64, error) {
	if v, ok := s.Cache.Rank(purchaseActionID); ok {
		return v, nil
	}
	action, err := repo.GetAction(ctx, s.DB, purchaseActionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrActionNotFound
		}
		return 0, err
	}
	offers, err := repo.CountOffers(ctx, s.DB, action.GiftID)
	if err != nil {
		return 0, err
	}
	if action.TargetActionID == nil {
		return offers + 1, nil
	}
	return s.Cache.StoreRank(purchaseActionID, offers), nil
}
