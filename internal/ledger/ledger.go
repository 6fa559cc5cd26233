// Package ledger owns the per-user credit balance, the single pending
// request slot, referral bookkeeping and the process-wide reporting
// counters. Every read goes to the store; nothing is cached across calls.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/store"
)

type Ledger struct {
	kv                   store.KV
	log                  *slog.Logger
	freeCredits          int
	referralBonusNewUser int
	referralBonusInviter int
}

func New(kv store.KV, log *slog.Logger, freeCredits, referralBonusNewUser, referralBonusInviter int) *Ledger {
	return &Ledger{
		kv:                   kv,
		log:                  log,
		freeCredits:          freeCredits,
		referralBonusNewUser: referralBonusNewUser,
		referralBonusInviter: referralBonusInviter,
	}
}

// Balance returns the user's credit balance, initializing a fresh account to
// the free-credit allowance on first access.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int, error) {
	raw, ok, err := l.kv.Get(ctx, store.CreditsKey(userID))
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := l.kv.Set(ctx, store.CreditsKey(userID), strconv.Itoa(l.freeCredits)); err != nil {
			return 0, err
		}
		return l.freeCredits, nil
	}
	balance, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("credits value for user %d is not an integer: %w", userID, err)
	}
	return balance, nil
}

// AddCredits tops up the balance with the store's increment primitive, so it
// is atomic relative to concurrent top-ups on the same user.
func (l *Ledger) AddCredits(ctx context.Context, userID int64, n int) (int, error) {
	balance, err := l.kv.IncrBy(ctx, store.CreditsKey(userID), int64(n))
	if err != nil {
		return 0, err
	}
	return int(balance), nil
}

// ConsumeOne debits one credit, flooring at zero, and returns the remainder.
// This is a compensating read-then-write on GET/SET, not linearizable: two
// near-simultaneous debits on the same user can lose one decrement. Accepted
// for the platform's low per-user message rate.
func (l *Ledger) ConsumeOne(ctx context.Context, userID int64) (int, error) {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	next := balance - 1
	if next < 0 {
		next = 0
	}
	if err := l.kv.Set(ctx, store.CreditsKey(userID), strconv.Itoa(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// ResetCredits drops the account so the next read re-initializes it.
func (l *Ledger) ResetCredits(ctx context.Context, userID int64) error {
	return l.kv.Del(ctx, store.CreditsKey(userID))
}

// SavePending stores the completed payload awaiting a purchase. At most one
// pending request exists per user; a newer one replaces the old.
func (l *Ledger) SavePending(ctx context.Context, userID int64, req models.PostcardRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal pending request: %w", err)
	}
	return l.kv.Set(ctx, store.PendingKey(userID), string(data))
}

// PopPending removes and returns the pending request, or nil if none exists.
// A second consecutive call returns nil.
func (l *Ledger) PopPending(ctx context.Context, userID int64) (*models.PostcardRequest, error) {
	raw, ok, err := l.kv.Get(ctx, store.PendingKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if err := l.kv.Del(ctx, store.PendingKey(userID)); err != nil {
		return nil, err
	}
	var req models.PostcardRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("unmarshal pending request: %w", err)
	}
	return &req, nil
}

// HasPending reports whether a pending request exists without consuming it.
func (l *Ledger) HasPending(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := l.kv.Get(ctx, store.PendingKey(userID))
	return ok, err
}

// RegisterContact records a first-ever contact. On a new user it increments
// the total-user counter and, when a valid referrer is present, grants the
// one-time signup bonus pair. Returns whether the user was new.
func (l *Ledger) RegisterContact(ctx context.Context, userID, referrerID int64) (bool, error) {
	_, seen, err := l.kv.Get(ctx, store.SeenKey(userID))
	if err != nil {
		return false, err
	}
	if err := l.kv.SAdd(ctx, store.KeyUserIndex, strconv.FormatInt(userID, 10)); err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}
	if err := l.kv.Set(ctx, store.SeenKey(userID), "1"); err != nil {
		return false, err
	}
	if _, err := l.kv.IncrBy(ctx, store.KeyTotalUsers, 1); err != nil {
		return false, err
	}

	if referrerID != 0 && referrerID != userID {
		// Both accounts must be initialized before the bonus lands: a bare
		// IncrBy would create the credits key and suppress the free-credit
		// grant on the first Balance read.
		if _, err := l.Balance(ctx, userID); err != nil {
			return true, err
		}
		if _, err := l.AddCredits(ctx, userID, l.referralBonusNewUser); err != nil {
			return true, err
		}
		if _, err := l.Balance(ctx, referrerID); err != nil {
			return true, err
		}
		if _, err := l.AddCredits(ctx, referrerID, l.referralBonusInviter); err != nil {
			return true, err
		}
		l.log.Info("referral bonus granted", "user", userID, "referrer", referrerID)
	}
	return true, nil
}

// RecordPurchase bumps the per-user purchase counter and the revenue total.
func (l *Ledger) RecordPurchase(ctx context.Context, userID int64, amountMinorUnits int) error {
	if _, err := l.kv.IncrBy(ctx, store.PurchasesKey(userID), 1); err != nil {
		return err
	}
	if _, err := l.kv.IncrBy(ctx, store.KeyTotalRevenue, int64(amountMinorUnits)); err != nil {
		return err
	}
	return nil
}

// RecordGeneration bumps the total-generation counter.
func (l *Ledger) RecordGeneration(ctx context.Context) error {
	_, err := l.kv.IncrBy(ctx, store.KeyTotalGenerations, 1)
	return err
}

// Stats is the reporting snapshot served by the admin panel.
type Stats struct {
	TotalUsers            int64 `json:"total_users"`
	TotalGenerations      int64 `json:"total_generations"`
	TotalRevenueMinorUnit int64 `json:"total_revenue_minor_units"`
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error
	if stats.TotalUsers, err = l.counter(ctx, store.KeyTotalUsers); err != nil {
		return Stats{}, err
	}
	if stats.TotalGenerations, err = l.counter(ctx, store.KeyTotalGenerations); err != nil {
		return Stats{}, err
	}
	if stats.TotalRevenueMinorUnit, err = l.counter(ctx, store.KeyTotalRevenue); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// UserIDs lists every chat id that has ever contacted the bot.
func (l *Ledger) UserIDs(ctx context.Context) ([]int64, error) {
	members, err := l.kv.SMembers(ctx, store.KeyUserIndex)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (l *Ledger) counter(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not an integer: %w", key, err)
	}
	return val, nil
}
