package ledger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/store"
)

func newTestLedger() *Ledger {
	return New(store.NewMemoryStore(), slog.Default(), 3, 1, 1)
}

func TestBalanceInitializesFreeCredits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	balance, err := l.Balance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	// Second read must not re-grant.
	_, err = l.ConsumeOne(ctx, 42)
	require.NoError(t, err)
	balance, err = l.Balance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
}

func TestAddCredits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	balance, err := l.AddCredits(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	balance, err = l.AddCredits(ctx, 42, 10)
	require.NoError(t, err)
	assert.Equal(t, 15, balance)
}

func TestConsumeOneFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	for i := 2; i >= 0; i-- {
		left, err := l.ConsumeOne(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, i, left)
	}

	// Already at zero; must stay there.
	left, err := l.ConsumeOne(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

func TestPendingRoundTripIsDestructive(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	req := models.PostcardRequest{
		Occasion:  models.OccasionBirthday,
		Style:     "Неон",
		Font:      "Lobster",
		TextMode:  models.TextModeAI,
		Addressee: "Мария",
	}
	require.NoError(t, l.SavePending(ctx, 42, req))

	has, err := l.HasPending(ctx, 42)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := l.PopPending(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req, *got)

	got, err = l.PopPending(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSavePendingReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	first := models.PostcardRequest{Occasion: models.OccasionWedding, Style: "Масло", Font: "Caveat", TextMode: models.TextModeAI, Addressee: "Иван"}
	second := first
	second.Addressee = "Ольга"

	require.NoError(t, l.SavePending(ctx, 42, first))
	require.NoError(t, l.SavePending(ctx, 42, second))

	got, err := l.PopPending(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ольга", got.Addressee)
}

func TestRegisterContactGrantsReferralOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	isNew, err := l.RegisterContact(ctx, 100, 200)
	require.NoError(t, err)
	assert.True(t, isNew)

	// The bonus lands on top of the free allowance for both parties, even
	// when the inviter's account has never been read before.
	balance, err := l.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	balance, err = l.Balance(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	// Repeat contact grants nothing.
	isNew, err = l.RegisterContact(ctx, 100, 200)
	require.NoError(t, err)
	assert.False(t, isNew)

	balance, err = l.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)
}

func TestReferralBonusDoesNotReplaceFreeCredits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	// The bonus is granted before the referred user ever reads their
	// balance; the first read must still find allowance plus bonus, not the
	// bonus alone.
	isNew, err := l.RegisterContact(ctx, 100, 200)
	require.NoError(t, err)
	require.True(t, isNew)

	balance, err := l.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)
}

func TestRegisterContactIgnoresSelfReferral(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	isNew, err := l.RegisterContact(ctx, 100, 100)
	require.NoError(t, err)
	assert.True(t, isNew)

	balance, err := l.Balance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestStatsAndUserIndex(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.RegisterContact(ctx, 100, 0)
	require.NoError(t, err)
	_, err = l.RegisterContact(ctx, 200, 0)
	require.NoError(t, err)

	require.NoError(t, l.RecordPurchase(ctx, 100, 15000))
	require.NoError(t, l.RecordGeneration(ctx))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalGenerations)
	assert.Equal(t, int64(15000), stats.TotalRevenueMinorUnit)

	ids, err := l.UserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 200}, ids)
}
