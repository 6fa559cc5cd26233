package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v"))
	val, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	require.NoError(t, s.Del(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreIncrBy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n, err := s.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = s.IncrBy(ctx, "counter", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.Set(ctx, "text", "abc"))
	_, err = s.IncrBy(ctx, "text", 1)
	assert.Error(t, err)
}

func TestMemoryStoreSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SAdd(ctx, "set", "b"))
	require.NoError(t, s.SAdd(ctx, "set", "a"))
	require.NoError(t, s.SAdd(ctx, "set", "a"))

	members, err := s.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "state:42", StateKey(42))
	assert.Equal(t, "credits:42", CreditsKey(42))
	assert.Equal(t, "pending:42", PendingKey(42))
	assert.Equal(t, "purchases:42", PurchasesKey(42))
	assert.Equal(t, "seen:42", SeenKey(42))
}
