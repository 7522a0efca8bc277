package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/1thousandframework/go-gift-backend/internal/cache"
	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/repo"
)

// newServiceDB opens a throwaway SQLite database with the full schema.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA busy_timeout=5000;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newWarmCache warms an inventory mirror from the current gift table.
func newWarmCache(t *testing.T, db *gorm.DB) *cache.Inventory {
	t.Helper()
	inv := cache.New()
	if err := inv.Warm(context.Background(), db); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	return inv
}

func seedGift(t *testing.T, db *gorm.DB, id string, supply int64) {
	t.Helper()
	g := domain.Gift{ID: id, Name: "Gift " + id, Price: 1, Asset: "TON", Supply: supply}
	if err := db.Create(&g).Error; err != nil {
		t.Fatalf("seed gift %s: %v", id, err)
	}
}

func seedUser(t *testing.T, db *gorm.DB, telegramID int64, name string) {
	t.Helper()
	if _, err := repo.CreateUser(context.Background(), db, telegramID, name, "", false, ""); err != nil {
		t.Fatalf("seed user %d: %v", telegramID, err)
	}
}

func TestRecordTransfer_BuildsThreeActionCycle(t *testing.T) {
	db := newServiceDB(t)
	seedGift(t, db, "g1", 10)
	seedUser(t, db, 1, "Buyer")
	seedUser(t, db, 2, "Receiver")
	inv := newWarmCache(t, db)
	svc := &LedgerService{DB: db, Cache: inv}
	ctx := context.Background()

	purchase, err := svc.RecordPurchase(ctx, "g1", 1)
	if err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}

	if err := svc.RecordTransfer(ctx, 2, 1, "g1", purchase.ID); err != nil {
		t.Fatalf("RecordTransfer: %v", err)
	}

	// The cycle: purchase → offer → claim → purchase.
	reloaded, err := repo.GetAction(ctx, db, purchase.ID)
	if err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	if reloaded.TargetActionID == nil {
		t.Fatalf("purchase not linked")
	}
	offer, err := repo.GetAction(ctx, db, *reloaded.TargetActionID)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if offer.Kind != domain.ActionOffer || offer.ActorTelegramID != 1 {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	claim, err := repo.GetAction(ctx, db, *offer.TargetActionID)
	if err != nil {
		t.Fatalf("load claim: %v", err)
	}
	if claim.Kind != domain.ActionClaim || claim.ActorTelegramID != 2 {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if claim.TargetActionID == nil || *claim.TargetActionID != purchase.ID {
		t.Fatalf("claim does not close the cycle: %+v", claim)
	}

	receiver, err := repo.GetUserByTelegramID(ctx, db, 2)
	if err != nil {
		t.Fatalf("load receiver: %v", err)
	}
	if receiver.ReceivedCount != 1 {
		t.Fatalf("expected received_count=1, got %d", receiver.ReceivedCount)
	}
}

func TestRecordTransfer_SecondTransferRollsBack(t *testing.T) {
	db := newServiceDB(t)
	seedGift(t, db, "g1", 10)
	seedUser(t, db, 1, "Buyer")
	seedUser(t, db, 2, "Receiver")
	seedUser(t, db, 3, "Other")
	inv := newWarmCache(t, db)
	svc := &LedgerService{DB: db, Cache: inv}
	ctx := context.Background()

	purchase, _ := svc.RecordPurchase(ctx, "g1", 1)
	if err := svc.RecordTransfer(ctx, 2, 1, "g1", purchase.ID); err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	var before int64
	db.Model(&domain.Action{}).Count(&before)

	if err := svc.RecordTransfer(ctx, 3, 1, "g1", purchase.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	// The losing transfer's claim and offer must not survive the rollback.
	var after int64
	db.Model(&domain.Action{}).Count(&after)
	if after != before {
		t.Fatalf("rollback leaked rows: before=%d after=%d", before, after)
	}
	other, _ := repo.GetUserByTelegramID(ctx, db, 3)
	if other.ReceivedCount != 0 {
		t.Fatalf("loser's received_count changed: %d", other.ReceivedCount)
	}
}

func TestClaimGift_ErrorsAndSuccess(t *testing.T) {
	db := newServiceDB(t)
	seedGift(t, db, "g1", 10)
	seedUser(t, db, 1, "Buyer")
	seedUser(t, db, 2, "Receiver")
	inv := newWarmCache(t, db)
	svc := &LedgerService{DB: db, Cache: inv} // nil Notifier: sends disabled
	ctx := context.Background()

	receiver, _ := repo.GetUserByTelegramID(ctx, db, 2)

	if _, err := svc.ClaimGift(ctx, receiver, "missing", "en"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}

	purchase, _ := svc.RecordPurchase(ctx, "g1", 1)
	got, err := svc.ClaimGift(ctx, receiver, purchase.ID, "en")
	if err != nil {
		t.Fatalf("ClaimGift: %v", err)
	}
	if got.Gift == nil || got.Gift.ID != "g1" {
		t.Fatalf("claim result not hydrated with gift: %+v", got)
	}
	if got.Actor == nil || got.Actor.TelegramID != 1 {
		t.Fatalf("claim result not hydrated with sender: %+v", got)
	}

	// Claiming the same purchase again must be refused up front.
	if _, err := svc.ClaimGift(ctx, receiver, purchase.ID, "en"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimGift_ConcurrentSingleWinner(t *testing.T) {
	db := newServiceDB(t)
	seedGift(t, db, "g1", 10)
	seedUser(t, db, 1, "Buyer")
	inv := newWarmCache(t, db)
	svc := &LedgerService{DB: db, Cache: inv}
	ctx := context.Background()

	const n = 6
	receivers := make([]*domain.User, n)
	for i := 0; i < n; i++ {
		seedUser(t, db, int64(100+i), fmt.Sprintf("R%d", i))
		u, _ := repo.GetUserByTelegramID(ctx, db, int64(100+i))
		receivers[i] = u
	}

	purchase, _ := svc.RecordPurchase(ctx, "g1", 1)

	var wg sync.WaitGroup
	wins := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(u *domain.User) {
			defer wg.Done()
			if _, err := svc.ClaimGift(ctx, u, purchase.ID, "en"); err == nil {
				wins <- u.TelegramID
			}
		}(receivers[i])
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", winners)
	}

	reloaded, _ := repo.GetAction(ctx, db, purchase.ID)
	if reloaded.TargetActionID == nil {
		t.Fatalf("purchase ended the race unlinked")
	}
}

func TestRank_SettledTransfersFreeze(t *testing.T) {
	db := newServiceDB(t)
	seedGift(t, db, "g1", 10)
	seedUser(t, db, 1, "Buyer")
	seedUser(t, db, 2, "Receiver")
	seedUser(t, db, 3, "Receiver2")
	inv := newWarmCache(t, db)
	svc := &LedgerService{DB: db, Cache: inv}
	ctx := context.Background()

	first, _ := svc.RecordPurchase(ctx, "g1", 1)
	if err := svc.RecordTransfer(ctx, 2, 1, "g1", first.ID); err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	rank, err := svc.Rank(ctx, first.ID)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if rank != 1 {
		t.Fatalf("expected rank 1 for the first transfer, got %d", rank)
	}

	// A later transfer takes the next number and does not move the first.
	second, _ := svc.RecordPurchase(ctx, "g1", 1)
	if err := svc.RecordTransfer(ctx, 3, 1, "g1", second.ID); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	if rank, _ = svc.Rank(ctx, second.ID); rank != 2 {
		t.Fatalf("expected rank 2 for the second transfer, got %d", rank)
	}
	if rank, _ = svc.Rank(ctx, first.ID); rank != 1 {
		t.Fatalf("first transfer's rank moved: %d", rank)
	}

	if _, err := svc.Rank(ctx, "missing"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}

func TestRank_UnsentPurchaseIsProspective(t *testing.T) {
	db := newServiceDB(t)
	seedGift(t, db, "g1", 10)
	seedUser(t, db, 1, "Buyer")
	seedUser(t, db, 2, "Receiver")
	inv := newWarmCache(t, db)
	svc := &LedgerService{DB: db, Cache: inv}
	ctx := context.Background()

	kept, _ := svc.RecordPurchase(ctx, "g1", 1)

	rank, err := svc.Rank(ctx, kept.ID)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if rank != 1 {
		t.Fatalf("expected prospective rank 1, got %d", rank)
	}

	// Another purchase settles first; the unsent purchase's prospective
	// number shifts.
	other, _ := svc.RecordPurchase(ctx, "g1", 1)
	if err := svc.RecordTransfer(ctx, 2, 1, "g1", other.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if rank, _ = svc.Rank(ctx, kept.ID); rank != 2 {
		t.Fatalf("expected prospective rank 2, got %d", rank)
	}
}
