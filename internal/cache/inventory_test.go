package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

func newWarmInventory(t *testing.T, gifts ...domain.Gift) *Inventory {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("cache_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Gift{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for i := range gifts {
		if err := db.Create(&gifts[i]).Error; err != nil {
			t.Fatalf("seed gift: %v", err)
		}
	}

	inv := New()
	if err := inv.Warm(context.Background(), db); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	return inv
}

func TestWarm_LoadsCounts(t *testing.T) {
	inv := newWarmInventory(t,
		domain.Gift{ID: "g1", Name: "A", Asset: "TON", Supply: 5, PurchasedCount: 2},
		domain.Gift{ID: "g2", Name: "B", Asset: "TON", Supply: 1, PurchasedCount: 1},
	)

	purchased, supply, ok := inv.Counts("g1")
	if !ok || purchased != 2 || supply != 5 {
		t.Fatalf("unexpected counts: %d/%d ok=%v", purchased, supply, ok)
	}
	if inv.SoldOut("g1") {
		t.Fatalf("g1 should have stock")
	}
	if !inv.SoldOut("g2") {
		t.Fatalf("g2 should be sold out")
	}
	// Unknown gifts read as sold out: the advisory gate fails closed.
	if !inv.SoldOut("nope") {
		t.Fatalf("unknown gift should read sold out")
	}
}

func TestConfirmPurchase_ReportsSellOut(t *testing.T) {
	inv := newWarmInventory(t, domain.Gift{ID: "g1", Name: "A", Asset: "TON", Supply: 2})

	count, soldOut := inv.ConfirmPurchase("g1")
	if count != 1 || soldOut {
		t.Fatalf("unexpected first confirm: count=%d soldOut=%v", count, soldOut)
	}
	count, soldOut = inv.ConfirmPurchase("g1")
	if count != 2 || !soldOut {
		t.Fatalf("expected sell-out on second confirm: count=%d soldOut=%v", count, soldOut)
	}
}

func TestConfirmPurchase_UpdatesCachedGiftCopy(t *testing.T) {
	inv := newWarmInventory(t, domain.Gift{ID: "g1", Name: "A", Asset: "TON", Supply: 5})
	inv.PutGift(domain.Gift{ID: "g1", Name: "A", Asset: "TON", Supply: 5})

	inv.ConfirmPurchase("g1")
	g, ok := inv.Gift("g1")
	if !ok || g.PurchasedCount != 1 {
		t.Fatalf("cached gift copy not updated: %+v ok=%v", g, ok)
	}
}

func TestReserve_ExpiresAndRevertsCounter(t *testing.T) {
	inv := newWarmInventory(t, domain.Gift{ID: "g1", Name: "A", Asset: "TON", Supply: 1})

	inv.Reserve("g1", 30*time.Millisecond)
	if !inv.SoldOut("g1") {
		t.Fatalf("reservation should consume the last unit")
	}

	deadline := time.After(2 * time.Second)
	for inv.SoldOut("g1") {
		select {
		case <-deadline:
			t.Fatalf("reservation never expired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	purchased, _, _ := inv.Counts("g1")
	if purchased != 0 {
		t.Fatalf("expected counter back at 0, got %d", purchased)
	}
}

func TestInvoiceSet_TrackForgetDrain(t *testing.T) {
	inv := newWarmInventory(t, domain.Gift{ID: "g1", Name: "A", Asset: "TON", Supply: 5})

	inv.TrackInvoice("g1", 1)
	inv.TrackInvoice("g1", 2)
	inv.TrackInvoice("g1", 3)
	inv.ForgetInvoice("g1", 2)

	ids := inv.DrainInvoices("g1")
	if len(ids) != 2 {
		t.Fatalf("expected 2 drained ids, got %v", ids)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[1] || !seen[3] || seen[2] {
		t.Fatalf("unexpected drained set: %v", ids)
	}

	// Drain empties the set.
	if rest := inv.DrainInvoices("g1"); len(rest) != 0 {
		t.Fatalf("expected empty second drain, got %v", rest)
	}
}

func TestStoreRank_FirstValueWins(t *testing.T) {
	inv := New()

	if _, ok := inv.Rank("p1"); ok {
		t.Fatalf("rank should start absent")
	}
	if got := inv.StoreRank("p1", 7); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	// A later store with a different value must not overwrite.
	if got := inv.StoreRank("p1", 99); got != 7 {
		t.Fatalf("rank was overwritten: got %d", got)
	}
	v, ok := inv.Rank("p1")
	if !ok || v != 7 {
		t.Fatalf("unexpected memoized rank: %d ok=%v", v, ok)
	}
}

func TestUserCache_CopiesAndMutation(t *testing.T) {
	inv := New()

	inv.PutUser(domain.User{TelegramID: 42, FirstName: "Ada", ReceivedCount: 1})

	u, ok := inv.User(42)
	if !ok || u.FirstName != "Ada" {
		t.Fatalf("unexpected cached user: %+v ok=%v", u, ok)
	}
	// Mutating the returned copy must not touch the cache.
	u.FirstName = "changed"
	again, _ := inv.User(42)
	if again.FirstName != "Ada" {
		t.Fatalf("cache leaked a mutable reference")
	}

	inv.MutateUser(42, func(c *domain.User) { c.ReceivedCount++ })
	after, _ := inv.User(42)
	if after.ReceivedCount != 2 {
		t.Fatalf("expected received_count=2, got %d", after.ReceivedCount)
	}

	// Mutation of an unknown user is a silent no-op.
	inv.MutateUser(99, func(c *domain.User) { c.ReceivedCount = 100 })
	if _, ok := inv.User(99); ok {
		t.Fatalf("mutation created a phantom user")
	}
}
