// Package domain defines the persistence models for gifts, users, ledger
// actions, and paid invoices. These types are mapped with GORM and form the
// core data layer of the gift-shop backend.
package domain

import "time"

// Action kinds. An action row is immutable once written; the only permitted
// mutation is linking a purchase to the offer that claims it.
const (
	// ActionPurchase is created when a paid invoice is reconciled.
	ActionPurchase = 1
	// ActionOffer is created by the buyer handing the gift over; it references
	// the claim that settles it.
	ActionOffer = 2
	// ActionClaim is created when a recipient redeems an offer; it references
	// the original purchase.
	ActionClaim = 3
)

// Gift represents a purchasable gift type with a finite supply. Rows are
// seeded once at deployment; only PurchasedCount mutates afterwards, and it
// never exceeds Supply.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name / Price / Asset: display name and settlement terms.
//   - Supply: total number of copies that may ever be sold (immutable).
//   - PurchasedCount: copies sold so far; incremented only by a guarded
//     conditional update (purchased_count < supply).
//   - Color / Animation / PlayAlgo: decorative metadata for the client.
type Gift struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Name           string    `json:"name"            gorm:"type:varchar(64);not null"`
	Price          float64   `json:"price"           gorm:"not null"`
	Asset          string    `json:"asset"           gorm:"type:varchar(16);not null"`
	Supply         int64     `json:"supply"          gorm:"not null"`
	PurchasedCount int64     `json:"purchased_count" gorm:"not null;default:0"`
	Color          string    `json:"color"           gorm:"type:varchar(16)"`
	Animation      string    `json:"animation"       gorm:"type:varchar(64)"`
	PlayAlgo       string    `json:"play_algo"       gorm:"type:varchar(64)"`
	CreatedAt      time.Time `json:"created_at"`

	// Availability is the memoized rank of a completed transfer ("#42 of
	// 10000"). Derived, never persisted.
	Availability int64 `json:"availability,omitempty" gorm:"-"`
}

// TableName returns the database table name for Gift.
func (Gift) TableName() string { return "gifts" }

// User is a Telegram identity known to the shop. Users are upserted on first
// contact and their ReceivedCount feeds the leaderboard.
type User struct {
	ID            string    `json:"-"              gorm:"type:char(36);primaryKey"`
	TelegramID    int64     `json:"telegram_id"    gorm:"not null;uniqueIndex:ux_users_telegram_id"`
	FirstName     string    `json:"first_name"     gorm:"type:varchar(128);not null"`
	LastName      string    `json:"last_name,omitempty" gorm:"type:varchar(128)"`
	IsPremium     bool      `json:"is_premium"`
	AvatarURL     string    `json:"avatar_url,omitempty" gorm:"type:varchar(255)"`
	ReceivedCount int64     `json:"received_count" gorm:"not null;default:0;index:idx_users_received,sort:desc"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Action is one append-only ledger entry. A completed custody transfer forms
// a 3-action cycle:
//
//	Purchase(buyer) --target--> Offer(buyer) --target--> Claim(receiver)
//	                                                      --target--> Purchase
//
// A purchase with a nil TargetActionID is "unsent". The sparse unique index
// over target_action_id guarantees a purchase is linked at most once.
//
// Hydrated fields (Gift, Actor, TargetUser, TargetAction) are filled by the
// query layer for API responses and are never persisted.
type Action struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	GiftID          string    `json:"gift_id"           gorm:"type:char(36);not null;index:idx_actions_gift"`
	ActorTelegramID int64     `json:"actor_telegram_id" gorm:"not null;index:idx_actions_actor"`
	Kind            int       `json:"action_type"       gorm:"not null;check:kind IN (1,2,3)"`
	TargetActionID  *string   `json:"target_action_id,omitempty" gorm:"type:char(36);uniqueIndex:ux_actions_target"`
	InsertedAt      time.Time `json:"insert_date"`

	Gift         *Gift   `json:"gift,omitempty"          gorm:"-"`
	Actor        *User   `json:"user,omitempty"          gorm:"-"`
	TargetUser   *User   `json:"target_user,omitempty"   gorm:"-"`
	TargetAction *Action `json:"target_action,omitempty" gorm:"-"`
}

// TableName returns the database table name for Action.
func (Action) TableName() string { return "actions" }

// Unsent reports whether a purchase has not yet been handed over.
func (a *Action) Unsent() bool { return a.Kind == ActionPurchase && a.TargetActionID == nil }

// Invoice maps an external payment-provider invoice id to the purchase action
// it authorized. Existence of the row is the idempotency proof for webhook
// redelivery: absent means "not yet processed", present means "already
// settled". Rows are written exactly once; a duplicate insert is benign.
type Invoice struct {
	ID               string    `gorm:"type:char(36);primaryKey"`
	InvoiceID        int64     `gorm:"not null;uniqueIndex:ux_invoices_invoice_id"`
	PurchaseActionID string    `gorm:"type:char(36);not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }
