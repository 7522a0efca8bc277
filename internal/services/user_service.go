// Package services – UserService
//
// This file implements user registration/upsert, the leaderboard queries, and
// the per-user ledger views (history, received gifts, unsent gifts). Users
// are read-through cached; cache entries are only mutated after a confirmed
// store update.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/cache"
	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/repo"
)

// UserService owns user rows and the queries over them.
type UserService struct {
	DB     *gorm.DB
	Cache  *cache.Inventory
	Ledger *LedgerService

	// PageSize caps list results.
	PageSize int
}

// Get returns a user by Telegram id, read-through cached.
func (s *UserService) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	if u, ok := s.Cache.User(telegramID); ok {
		return &u, nil
	}
	u, err := repo.GetUserByTelegramID(ctx, s.DB, telegramID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.Cache.PutUser(*u)
	return u, nil
}

// Ensure registers the caller on first contact and refreshes changed profile
// fields afterwards. The cached copy is updated only when the store write
// actually modified a row.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, firstName, lastName string, isPremium bool, avatarURL string) (*domain.User, error) {
	u, err := s.Get(ctx, telegramID)
	if errors.Is(err, ErrUserNotFound) {
		created, cerr := repo.CreateUser(ctx, s.DB, telegramID, firstName, lastName, isPremium, avatarURL)
		if cerr != nil {
			// Lost a concurrent registration race; fall back to the winner.
			if existing, gerr := repo.GetUserByTelegramID(ctx, s.DB, telegramID); gerr == nil {
				s.Cache.PutUser(*existing)
				return existing, nil
			}
			return nil, cerr
		}
		s.Cache.PutUser(*created)
		return created, nil
	}
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if u.FirstName != firstName {
		fields["first_name"] = firstName
	}
	if u.LastName != lastName {
		fields["last_name"] = lastName
	}
	if u.IsPremium != isPremium {
		fields["is_premium"] = isPremium
	}
	if avatarURL != "" && u.AvatarURL != avatarURL {
		fields["avatar_url"] = avatarURL
	}
	if len(fields) > 0 {
		modified, uerr := repo.UpdateUserProfile(ctx, s.DB, telegramID, fields)
		if uerr != nil {
			return nil, uerr
		}
		if modified {
			s.Cache.MutateUser(telegramID, func(c *domain.User) {
				c.FirstName = firstName
				c.LastName = lastName
				c.IsPremium = isPremium
				if avatarURL != "" {
					c.AvatarURL = avatarURL
				}
			})
			u.FirstName, u.LastName, u.IsPremium = firstName, lastName, isPremium
			if avatarURL != "" {
				u.AvatarURL = avatarURL
			}
		}
	}
	return u, nil
}

// Place returns the user's leaderboard position: one plus the number of
// users who received strictly more gifts. Unknown users place at zero.
func (s *UserService) Place(ctx context.Context, telegramID int64) (int64, error) {
	u, err := s.Get(ctx, telegramID)
	if errors.Is(err, ErrUserNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	above, err := repo.CountUsersAbove(ctx, s.DB, u.ReceivedCount)
	if err != nil {
		return 0, err
	}
	return above + 1, nil
}

// Leaders returns a page of users ordered by received gifts.
func (s *UserService) Leaders(ctx context.Context, offset int) ([]domain.User, error) {
	return repo.ListLeaders(ctx, s.DB, offset, s.PageSize)
}

// History returns every action performed by a user, hydrated with the gift
// and, for transfer actions, the counterpart user.
func (s *UserService) History(ctx context.Context, gifts *GiftService, telegramID int64, offset int) ([]domain.Action, error) {
	actions, err := repo.ListUserActions(ctx, s.DB, telegramID, offset, s.PageSize)
	if err != nil {
		return nil, err
	}
	for i := range actions {
		a := &actions[i]
		if g, gerr := gifts.Get(ctx, a.GiftID); gerr == nil {
			a.Gift = g
		}
		if a.Kind != domain.ActionPurchase && a.TargetActionID != nil {
			if related, rerr := repo.GetAction(ctx, s.DB, *a.TargetActionID); rerr == nil {
				if u, uerr := s.Get(ctx, related.ActorTelegramID); uerr == nil {
					a.Actor = u
				}
			}
		}
	}
	return actions, nil
}

// Received returns the user's collection: claim actions hydrated with the
// gift, the original purchase, the buyer, and the frozen transfer rank.
func (s *UserService) Received(ctx context.Context, gifts *GiftService, telegramID int64, offset int) ([]domain.Action, error) {
	actions, err := repo.ListReceivedClaims(ctx, s.DB, telegramID, offset, s.PageSize)
	if err != nil {
		return nil, err
	}
	for i := range actions {
		a := &actions[i]
		if g, gerr := gifts.Get(ctx, a.GiftID); gerr == nil {
			a.Gift = g
		}
		if a.TargetActionID == nil {
			continue
		}
		purchase, perr := repo.GetAction(ctx, s.DB, *a.TargetActionID)
		if perr != nil {
			continue
		}
		a.TargetAction = purchase
		if u, uerr := s.Get(ctx, purchase.ActorTelegramID); uerr == nil {
			a.TargetUser = u
		}
		if a.Gift != nil {
			if rank, rerr := s.Ledger.Rank(ctx, purchase.ID); rerr == nil {
				g := *a.Gift
				g.Availability = rank
				a.Gift = &g
			}
		}
	}
	return actions, nil
}

// Unsent returns the user's purchases without a forward link, each hydrated
// with the gift and its prospective rank.
func (s *UserService) Unsent(ctx context.Context, gifts *GiftService, telegramID int64, offset int) ([]domain.Action, error) {
	actions, err := repo.ListUnsentPurchases(ctx, s.DB, telegramID, offset, s.PageSize)
	if err != nil {
		return nil, err
	}
	for i := range actions {
		a := &actions[i]
		g, gerr := gifts.Get(ctx, a.GiftID)
		if gerr != nil {
			continue
		}
		gc := *g
		if rank, rerr := s.Ledger.Rank(ctx, a.ID); rerr == nil {
			gc.Availability = rank
		}
		a.Gift = &gc
	}
	return actions, nil
}
