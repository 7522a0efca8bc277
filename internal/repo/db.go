// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations, and catalogue seeding.
package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates a unique-constraint violation on an insert
// (e.g. a redelivered invoice record).
var ErrDuplicate = errors.New("duplicate")

// IsDuplicate reports whether err is a unique-constraint violation. The
// glebarez driver often returns plain-text errors instead of
// gorm.ErrDuplicatedKey, so the message is matched as a fallback.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all persisted collections.
// The sparse unique index on actions.target_action_id and the unique index on
// invoices.invoice_id come from the model tags.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Gift{},
		&domain.User{},
		&domain.Action{},
		&domain.Invoice{},
	)
}

// SeedGifts inserts the initial gift catalogue when the table is empty.
// Supply is immutable once seeded; re-running is a no-op.
func SeedGifts(db *gorm.DB) error {
	var n int64
	if err := db.Model(&domain.Gift{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	gifts := []domain.Gift{
		{Name: "Delicious Cake", Price: 10, Asset: "USDT", Supply: 10000, Color: "#FE9F41", Animation: "delicious-cake", PlayAlgo: "play"},
		{Name: "Green Star", Price: 0.01, Asset: "ETH", Supply: 5000, Color: "#46D100", Animation: "green-star", PlayAlgo: "reverseplay play"},
		{Name: "Blue Star", Price: 5, Asset: "TON", Supply: 3000, Color: "#007AFF", Animation: "blue-star", PlayAlgo: "reverseplay play"},
		{Name: "Red Star", Price: 5, Asset: "USDT", Supply: 3, Color: "#FF4747", Animation: "red-star", PlayAlgo: "reverseplay play"},
	}
	now := time.Now().UTC()
	for i := range gifts {
		gifts[i].ID = uuid.NewString()
		gifts[i].CreatedAt = now
	}
	return db.Create(&gifts).Error
}
