// Package store provides the durable per-user key/value storage the funnel
// and the credit ledger run on. All keys are namespaced by a literal prefix
// and the user id; single operations are atomic per key as long as the
// backing driver honors that.
package store

import (
	"context"
	"fmt"
)

// KV is the minimal key/value contract the core needs. Get reports presence
// explicitly so an empty value and a missing key are distinguishable.
// Mutating operations must fail closed: an error means nothing was persisted.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	// IncrBy atomically adds delta to the integer at key (missing counts as
	// zero) and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	// SAdd adds member to the set at key; SMembers lists the set.
	SAdd(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

const (
	// KeyTotalUsers, KeyTotalGenerations and KeyTotalRevenue are process-wide
	// monotonic counters used only for reporting.
	KeyTotalUsers       = "stats:users"
	KeyTotalGenerations = "stats:generations"
	KeyTotalRevenue     = "stats:revenue"

	// KeyUserIndex is the set of every chat id that has ever contacted the bot.
	KeyUserIndex = "users:index"
)

func StateKey(userID int64) string {
	return fmt.Sprintf("state:%d", userID)
}

func CreditsKey(userID int64) string {
	return fmt.Sprintf("credits:%d", userID)
}

func PendingKey(userID int64) string {
	return fmt.Sprintf("pending:%d", userID)
}

func PurchasesKey(userID int64) string {
	return fmt.Sprintf("purchases:%d", userID)
}

func SeenKey(userID int64) string {
	return fmt.Sprintf("seen:%d", userID)
}
