// Package cache holds the process-wide inventory mirror: purchased counters,
// outstanding invoice sets, memoized transfer ranks, and read-through copies
// of users and gifts. The cache is never the source of truth; every mutation
// is issued synchronously after the corresponding store write is confirmed.
//
// Each gift has its own entry guarded by its own mutex, so unrelated gifts
// never contend. The user/gift/rank maps are guarded separately.
package cache

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/repo"
)

// entry is the hot per-gift state: the advisory sold counter, the immutable
// supply, and the set of unconfirmed provider invoices.
type entry struct {
	mu        sync.Mutex
	supply    int64
	purchased int64
	invoices  map[int64]struct{}
}

// Inventory is the in-memory mirror. Construct with New, fill with Warm, and
// pass explicitly to every component that mutates it.
type Inventory struct {
	mu      sync.RWMutex
	entries map[string]*entry

	rankMu sync.Mutex
	ranks  map[string]int64

	userMu sync.RWMutex
	users  map[int64]domain.User

	giftMu sync.RWMutex
	gifts  map[string]domain.Gift
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{
		entries: make(map[string]*entry),
		ranks:   make(map[string]int64),
		users:   make(map[int64]domain.User),
		gifts:   make(map[string]domain.Gift),
	}
}

// Warm performs the startup full scan: every gift's supply and persisted
// purchased count is loaded into the mirror.
func (inv *Inventory) Warm(ctx context.Context, db *gorm.DB) error {
	gifts, err := repo.ListGifts(ctx, db, 0, 0)
	if err != nil {
		return err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, g := range gifts {
		inv.entries[g.ID] = &entry{
			supply:    g.Supply,
			purchased: g.PurchasedCount,
			invoices:  make(map[int64]struct{}),
		}
	}
	return nil
}

// lookup returns the per-gift entry, or nil for an unknown gift.
func (inv *Inventory) lookup(giftID string) *entry {
	inv.mu.RLock()
	e := inv.entries[giftID]
	inv.mu.RUnlock()
	return e
}

// Counts returns the cached (purchased, supply) pair for a gift.
func (inv *Inventory) Counts(giftID string) (purchased, supply int64, ok bool) {
	e := inv.lookup(giftID)
	if e == nil {
		return 0, 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.purchased, e.supply, true
}

// SoldOut reports whether the cached counter has reached the supply. The
// check is advisory: it reserves nothing and is only used to gate the
// purchase-intent path.
func (inv *Inventory) SoldOut(giftID string) bool {
	e := inv.lookup(giftID)
	if e == nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.purchased >= e.supply
}

// ConfirmPurchase applies a store-confirmed counter increment and reports the
// new count together with whether the gift just sold out.
func (inv *Inventory) ConfirmPurchase(giftID string) (count int64, soldOut bool) {
	e := inv.lookup(giftID)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.purchased++
	if g, ok := inv.peekGift(giftID); ok {
		g.PurchasedCount = e.purchased
		inv.storeGift(g)
	}
	return e.purchased, e.purchased >= e.supply
}

// Reserve optimistically bumps the counter for the lifetime of a freshly
// issued invoice and schedules the compensating decrement. The decrement
// always fires: when the invoice confirms in time, reconciliation's separate
// increment and this decrement cancel out exactly once. The reservation is
// process-local and is lost on restart (accepted best-effort semantics).
func (inv *Inventory) Reserve(giftID string, lifetime time.Duration) {
	e := inv.lookup(giftID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.purchased++
	e.mu.Unlock()
	time.AfterFunc(lifetime, func() {
		e.mu.Lock()
		e.purchased--
		e.mu.Unlock()
	})
}

// TrackInvoice adds a provider invoice id to the gift's outstanding set.
func (inv *Inventory) TrackInvoice(giftID string, invoiceID int64) {
	e := inv.lookup(giftID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.invoices[invoiceID] = struct{}{}
	e.mu.Unlock()
}

// ForgetInvoice removes one invoice id (confirmed or expired).
func (inv *Inventory) ForgetInvoice(giftID string, invoiceID int64) {
	e := inv.lookup(giftID)
	if e == nil {
		return
	}
	e.mu.Lock()
	delete(e.invoices, invoiceID)
	e.mu.Unlock()
}

// DrainInvoices atomically empties the outstanding set and returns the ids,
// used on sell-out to retire invoices that can no longer be fulfilled.
func (inv *Inventory) DrainInvoices(giftID string) []int64 {
	e := inv.lookup(giftID)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.invoices))
	for id := range e.invoices {
		ids = append(ids, id)
	}
	e.invoices = make(map[int64]struct{})
	return ids
}

// Rank returns the memoized rank for a completed purchase, if computed.
func (inv *Inventory) Rank(purchaseActionID string) (int64, bool) {
	inv.rankMu.Lock()
	defer inv.rankMu.Unlock()
	v, ok := inv.ranks[purchaseActionID]
	return v, ok
}

// StoreRank memoizes a rank value, write-once per key: the first stored value
// wins and is returned. Ranks freeze at first computation and are never
// invalidated.
func (inv *Inventory) StoreRank(purchaseActionID string, rank int64) int64 {
	inv.rankMu.Lock()
	defer inv.rankMu.Unlock()
	if v, ok := inv.ranks[purchaseActionID]; ok {
		return v
	}
	inv.ranks[purchaseActionID] = rank
	return rank
}

// User returns a copy of the cached user, if present.
func (inv *Inventory) User(telegramID int64) (domain.User, bool) {
	inv.userMu.RLock()
	defer inv.userMu.RUnlock()
	u, ok := inv.users[telegramID]
	return u, ok
}

// PutUser stores a copy of a user after a confirmed store read or write.
func (inv *Inventory) PutUser(u domain.User) {
	inv.userMu.Lock()
	inv.users[u.TelegramID] = u
	inv.userMu.Unlock()
}

// MutateUser applies fn to the cached user in place, if present. Called only
// after the corresponding store update succeeded.
func (inv *Inventory) MutateUser(telegramID int64, fn func(*domain.User)) {
	inv.userMu.Lock()
	defer inv.userMu.Unlock()
	if u, ok := inv.users[telegramID]; ok {
		fn(&u)
		inv.users[telegramID] = u
	}
}

// Gift returns a copy of the cached gift, if present.
func (inv *Inventory) Gift(giftID string) (domain.Gift, bool) {
	inv.giftMu.RLock()
	defer inv.giftMu.RUnlock()
	g, ok := inv.gifts[giftID]
	return g, ok
}

// PutGift stores a copy of a gift after a confirmed store read.
func (inv *Inventory) PutGift(g domain.Gift) {
	inv.giftMu.Lock()
	inv.gifts[g.ID] = g
	inv.giftMu.Unlock()
}

func (inv *Inventory) peekGift(giftID string) (domain.Gift, bool) {
	inv.giftMu.RLock()
	defer inv.giftMu.RUnlock()
	g, ok := inv.gifts[giftID]
	return g, ok
}

func (inv *Inventory) storeGift(g domain.Gift) {
	inv.giftMu.Lock()
	inv.gifts[g.ID] = g
	inv.giftMu.Unlock()
}
