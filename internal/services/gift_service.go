// Package services – GiftService
//
// This file implements the catalogue and purchase-intent use-cases: listing
// and fetching gifts (read-through cached), creating provider invoices with
// the optimistic reservation that stops over-issuing invoices for the last
// remaining units, polling for invoice settlement, and the per-gift activity
// feed.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/cache"
	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/locale"
	"github.com/1thousandframework/go-gift-backend/internal/pay"
	"github.com/1thousandframework/go-gift-backend/internal/repo"
)

// PaymentURLs is returned to the client after a purchase intent: the provider
// invoice id plus the URLs where it can be paid.
type PaymentURLs struct {
	InvoiceID  int64  `json:"invoice_id"`
	MiniAppURL string `json:"mini_app_url"`
	BotURL     string `json:"bot_url"`
}

// GiftService serves catalogue reads and the purchase-intent path.
type GiftService struct {
	DB    *gorm.DB
	Cache *cache.Inventory
	Pay   PayClient

	// InvoiceLifetime is the provider-side invoice TTL and the reservation
	// window of the optimistic counter increment.
	InvoiceLifetime time.Duration
	// PollMax bounds how long CheckInvoiceProcessed waits for settlement.
	PollMax time.Duration
	// PageSize caps list results.
	PageSize int
}

// List returns a page of the gift catalogue.
func (s *GiftService) List(ctx context.Context, offset int) ([]domain.Gift, error) {
	return repo.ListGifts(ctx, s.DB, offset, s.PageSize)
}

// Get returns one gift, read-through cached. The cached copy carries the
// purchased count as of the last confirmed settlement.
func (s *GiftService) Get(ctx context.Context, giftID string) (*domain.Gift, error) {
	if g, ok := s.Cache.Gift(giftID); ok {
		return &g, nil
	}
	g, err := repo.GetGift(ctx, s.DB, giftID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGiftNotFound
		}
		return nil, err
	}
	s.Cache.PutGift(*g)
	return g, nil
}

// CreateInvoice handles a purchase intent. The sold-out check is advisory
// (it reserves nothing); what prevents over-issuing invoices near the end of
// supply is the optimistic cache increment reverted after InvoiceLifetime.
// No store write happens on this path.
func (s *GiftService) CreateInvoice(ctx context.Context, buyer *domain.User, giftID, lang string) (*PaymentURLs, error) {
	gift, err := s.Get(ctx, giftID)
	if err != nil {
		return nil, err
	}
	if s.Cache.SoldOut(giftID) {
		return nil, ErrOutOfStock
	}

	inv, err := s.Pay.CreateInvoice(ctx, pay.CreateInvoiceRequest{
		Amount:      strconv.FormatFloat(gift.Price, 'f', -1, 64),
		Asset:       gift.Asset,
		Description: locale.T(lang, "gift_buy_desc", gift.Name),
		Payload:     strings.Join([]string{gift.ID, strconv.FormatInt(buyer.TelegramID, 10), lang}, " "),
		ExpiresIn:   int(s.InvoiceLifetime / time.Second),
	})
	if err != nil {
		log.Error().Err(err).Str("gift_id", giftID).Msg("provider invoice creation failed")
		return nil, ErrInvoiceUnavailable
	}

	s.Cache.Reserve(giftID, s.InvoiceLifetime)
	s.Cache.TrackInvoice(giftID, inv.InvoiceID)
	invoiceID := inv.InvoiceID
	time.AfterFunc(s.InvoiceLifetime, func() {
		s.Cache.ForgetInvoice(giftID, invoiceID)
	})

	return &PaymentURLs{
		InvoiceID:  inv.InvoiceID,
		MiniAppURL: inv.MiniAppInvoiceURL,
		BotURL:     inv.BotInvoiceURL,
	}, nil
}

// CheckInvoiceProcessed polls the invoice mapping until the confirmation has
// been reconciled, the poll window elapses, or ctx is done. It returns the
// hydrated purchase action once settled, or nil on timeout.
func (s *GiftService) CheckInvoiceProcessed(ctx context.Context, invoiceID int64) (*domain.Action, error) {
	deadline := time.NewTimer(s.PollMax)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		purchaseActionID, err := repo.GetInvoicePurchase(ctx, s.DB, invoiceID)
		switch {
		case err == nil:
			action, err := repo.GetAction(ctx, s.DB, purchaseActionID)
			if err != nil {
				return nil, err
			}
			gift, err := s.Get(ctx, action.GiftID)
			if err != nil {
				return nil, err
			}
			action.Gift = gift
			return action, nil
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-tick.C:
		}
	}
}

// RecentActions returns the hydrated purchase/offer feed for a gift.
func (s *GiftService) RecentActions(ctx context.Context, users *UserService, giftID string, offset int) ([]domain.Action, error) {
	actions, err := repo.ListGiftActions(ctx, s.DB, giftID, offset, s.PageSize)
	if err != nil {
		return nil, err
	}
	for i := range actions {
		a := &actions[i]
		if u, err := users.Get(ctx, a.ActorTelegramID); err == nil {
			a.Actor = u
		}
		if g, err := s.Get(ctx, a.GiftID); err == nil {
			a.Gift = g
		}
		if a.Kind == domain.ActionOffer && a.TargetActionID != nil {
			if target, err := repo.GetAction(ctx, s.DB, *a.TargetActionID); err == nil {
				if u, err := users.Get(ctx, target.ActorTelegramID); err == nil {
					a.TargetUser = u
				}
			}
		}
	}
	return actions, nil
}
