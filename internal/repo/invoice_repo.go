// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Invoice
// model: the idempotency proof that a payment confirmation has been settled.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

// GetInvoicePurchase returns the purchase action id recorded for an external
// invoice id, or ErrNotFound when the invoice has not been settled yet.
func GetInvoicePurchase(ctx context.Context, db *gorm.DB, invoiceID int64) (string, error) {
	var rec domain.Invoice
	err := db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return rec.PurchaseActionID, nil
}

// CreateInvoice records the invoice → purchase mapping and returns
// ErrDuplicate on unique violation. Callers treat the duplicate as benign:
// a concurrent delivery of the same confirmation already won.
func CreateInvoice(ctx context.Context, db *gorm.DB, invoiceID int64, purchaseActionID string) error {
	rec := &domain.Invoice{
		ID:               uuid.NewString(),
		InvoiceID:        invoiceID,
		PurchaseActionID: purchaseActionID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
