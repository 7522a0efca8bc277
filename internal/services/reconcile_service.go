// Package services – ReconcileService
//
// This file implements the payment reconciliation engine: it turns one
// "invoice paid" webhook delivery into exactly one settled purchase. The
// provider delivers at-least-once, so the invoice-record mapping doubles as
// the idempotency proof; redelivering a confirmation any number of times
// yields one purchase, one counter increment, and one buyer notification.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/1thousandframework/go-gift-backend/internal/bot"
	"github.com/1thousandframework/go-gift-backend/internal/cache"
	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/locale"
	"github.com/1thousandframework/go-gift-backend/internal/pay"
	"github.com/1thousandframework/go-gift-backend/internal/repo"
)

// Notifier is the outbound messaging channel. Sends are best-effort: a
// failure is logged and never affects settlement correctness.
type Notifier interface {
	SendText(ctx context.Context, recipientID int64, text string, opts *bot.SendOptions) (int64, error)
}

// PayClient is the outbound payment-provider contract consumed by the
// services layer.
type PayClient interface {
	CreateInvoice(ctx context.Context, req pay.CreateInvoiceRequest) (*pay.Invoice, error)
	DeleteInvoice(ctx context.Context, invoiceID int64) error
}

// ReconcileService consumes paid-invoice confirmations and performs the
// atomic settlement: persist the purchase, bump the guarded counter, record
// the invoice mapping, then notify and update the inventory mirror.
type ReconcileService struct {
	DB       *gorm.DB
	Cache    *cache.Inventory
	Ledger   *LedgerService
	Notifier Notifier
	Pay      PayClient

	// Hostname builds the web-app link attached to the buyer notification.
	Hostname string
}

// errAlreadySettled aborts a settlement transaction that lost to a
// concurrent delivery of the same invoice. Internal: HandleUpdate maps it
// to a silent acknowledgment.
var errAlreadySettled = errors.New("invoice already settled")

// invoicePayload is the opaque string this system attached when creating the
// invoice: "<giftID> <buyerID> <languageHint>".
type invoicePayload struct {
	giftID  string
	buyerID int64
	lang    string
}

func parseInvoicePayload(s string) (invoicePayload, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return invoicePayload{}, ErrBadPayload
	}
	buyerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return invoicePayload{}, ErrBadPayload
	}
	return invoicePayload{giftID: parts[0], buyerID: buyerID, lang: parts[2]}, nil
}

// HandleUpdate processes one webhook delivery. Update types other than
// invoice_paid are acknowledged and ignored. Settlement steps 1–3 (purchase
// insert, counter increment, invoice record) are one transaction: on any
// failure nothing is visible and redelivery retries cleanly.
func (s *ReconcileService) HandleUpdate(ctx context.Context, upd pay.Update) error {
	if upd.UpdateType != pay.UpdateInvoicePaid {
		return nil
	}
	tr := otel.Tracer("services/ReconcileService")
	ctx, span := tr.Start(ctx, "HandleUpdate",
		trace.WithAttributes(attribute.Int64("invoice.id", upd.Payload.InvoiceID)),
	)
	defer span.End()

	// Idempotency fast path: the mapping exists only if a previous delivery
	// fully settled, so a hit means there is nothing left to do.
	if _, err := repo.GetInvoicePurchase(ctx, s.DB, upd.Payload.InvoiceID); err == nil {
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	p, err := parseInvoicePayload(upd.Payload.Payload)
	if err != nil {
		log.Error().Int64("invoice_id", upd.Payload.InvoiceID).Str("payload", upd.Payload.Payload).
			Msg("unparseable invoice payload")
		return err
	}

	settled, err := s.settleInvoice(ctx, p, upd.Payload.InvoiceID)
	if err != nil {
		return err
	}
	if !settled {
		// Lost to a concurrent delivery that committed first; that delivery
		// already notified and updated the mirror.
		return nil
	}

	s.notifyBuyer(ctx, p)
	s.settleCache(ctx, p.giftID, upd.Payload.InvoiceID)
	return nil
}

// settleInvoice runs settlement steps 1–3 as one transaction and reports
// whether this call won the invoice. Two deliveries can both pass the
// fast-path read before either commits; the invoice record's unique index
// then picks the winner, and the loser's purchase insert and counter
// increment roll back with it.
func (s *ReconcileService) settleInvoice(ctx context.Context, p invoicePayload, invoiceID int64) (bool, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		purchase, err := repo.CreateAction(ctx, tx, p.giftID, domain.ActionPurchase, p.buyerID, nil)
		if err != nil {
			return err
		}
		counted, err := repo.IncrementPurchasedCount(ctx, tx, p.giftID)
		if err != nil {
			return err
		}
		if !counted {
			// Supply exhausted between invoice issue and payment. Abort so
			// the ledger never exceeds the supply.
			return ErrOutOfStock
		}
		if err := repo.CreateInvoice(ctx, tx, invoiceID, purchase.ID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return errAlreadySettled
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// notifyBuyer congratulates the buyer, naming the gift. Failures are logged.
func (s *ReconcileService) notifyBuyer(ctx context.Context, p invoicePayload) {
	gift, err := repo.GetGift(ctx, s.DB, p.giftID)
	if err != nil {
		log.Error().Err(err).Str("gift_id", p.giftID).Msg("load gift for purchase notification")
		return
	}
	text := "✅ " + locale.T(p.lang, "gift_buy_congrats", "<b>"+gift.Name+"</b>")
	opts := &bot.SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: bot.WebAppKeyboard(locale.T(p.lang, "open_gifts"), "https://"+s.Hostname+"/gifts"),
	}
	if _, err := s.Notifier.SendText(ctx, p.buyerID, text, opts); err != nil {
		log.Error().Err(err).Int64("buyer_id", p.buyerID).Msg("purchase notification failed")
	}
}

// settleCache applies the confirmed increment to the inventory mirror and,
// when the gift just sold out, drains the outstanding invoice set and asks
// the provider to cancel each one. Cancellation failures are logged only.
func (s *ReconcileService) settleCache(ctx context.Context, giftID string, invoiceID int64) {
	s.Cache.ForgetInvoice(giftID, invoiceID)
	count, soldOut := s.Cache.ConfirmPurchase(giftID)
	if !soldOut {
		return
	}
	log.Info().Str("gift_id", giftID).Int64("purchased", count).Msg("gift sold out, retiring open invoices")
	for _, id := range s.Cache.DrainInvoices(giftID) {
		if err := s.Pay.DeleteInvoice(ctx, id); err != nil {
			log.Error().Err(err).Int64("invoice_id", id).Msg("invoice cancellation failed")
		}
	}
}
