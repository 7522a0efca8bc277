package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

func TestGetInvoicePurchase_NotFoundUntilRecorded(t *testing.T) {
	db := newTestDB(t, &domain.Invoice{})
	ctx := context.Background()

	if _, err := GetInvoicePurchase(ctx, db, 777); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := CreateInvoice(ctx, db, 777, "purchase-1"); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	got, err := GetInvoicePurchase(ctx, db, 777)
	if err != nil {
		t.Fatalf("GetInvoicePurchase: %v", err)
	}
	if got != "purchase-1" {
		t.Fatalf("expected purchase-1, got %q", got)
	}
}

func TestCreateInvoice_DuplicateInvoiceID(t *testing.T) {
	db := newTestDB(t, &domain.Invoice{})
	ctx := context.Background()

	if err := CreateInvoice(ctx, db, 100, "purchase-1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Same external invoice id again, even with a different purchase: the
	// unique index must refuse and the error must map to ErrDuplicate.
	if err := CreateInvoice(ctx, db, 100, "purchase-2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	var n int64
	if err := db.Model(&domain.Invoice{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single invoice row, got %d", n)
	}
}

func TestCreateInvoice_Error_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if err := CreateInvoice(context.Background(), db, 1, "p"); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected non-duplicate error, got %v", err)
	}
}
