package pricing

import (
	"context"
	"testing"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"
	"bookstore/internal/store/memstore"
	"bookstore/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDiscountAppliesOnlyInsideWindow(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clock := testutil.NewClock()
	book := testutil.SeedBook(t, s, testutil.PurchasePrice("10.00"))
	discount := testutil.SeedDiscount(t, s, book.ID, "20", clock.Now(), clock.Now().AddDate(0, 0, 7))

	engine := NewEngine(s, WithClock(clock.Now))

	q, err := engine.Quote(ctx, book.ID, model.IntentPurchase)
	require.NoError(t, err)
	assert.Equal(t, "8", q.Price.Decimal.String())
	assert.Equal(t, uuid.NullUUID{UUID: discount.ID, Valid: true}, q.DiscountID)

	clock.Advance(7 * 24 * time.Hour)
	price, err := engine.EffectivePrice(ctx, book.ID, model.IntentPurchase)
	require.NoError(t, err)
	assert.True(t, price.Decimal.Equal(decimal.RequireFromString("10.00")))
}

func TestInactiveDiscountIgnored(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clock := testutil.NewClock()
	book := testutil.SeedBook(t, s, testutil.BorrowPrice("4.00"))
	d := testutil.SeedDiscount(t, s, book.ID, "50", clock.Now(), clock.Now().Add(time.Hour))
	d.Active = false
	testutil.Tx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.UpdateDiscount(ctx, d) })

	q, err := NewEngine(s, WithClock(clock.Now)).Quote(ctx, book.ID, model.IntentBorrow)
	require.NoError(t, err)
	assert.Equal(t, "4", q.Price.Decimal.String())
	assert.False(t, q.DiscountID.Valid)
}

func TestMissingBasePriceIsNull(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	buyOnly := testutil.SeedBook(t, s, testutil.BuyOnly())
	borrowOnly := testutil.SeedBook(t, s, testutil.NoPurchase())
	engine := NewEngine(s)

	q, err := engine.Quote(ctx, buyOnly.ID, model.IntentBorrow)
	require.NoError(t, err)
	assert.False(t, q.Price.Valid)

	q, err = engine.Quote(ctx, borrowOnly.ID, model.IntentPurchase)
	require.NoError(t, err)
	assert.False(t, q.Price.Valid)
}

func TestQuoteErrors(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	book := testutil.SeedBook(t, s)
	engine := NewEngine(s)

	_, err := engine.Quote(ctx, book.ID, model.Intent("rent"))
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = engine.Quote(ctx, uuid.New(), model.IntentBorrow)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestApplyRoundsToCents(t *testing.T) {
	cases := []struct {
		base, percent, want string
	}{
		{"10.00", "20", "8.00"},
		{"9.99", "15", "8.49"},
		{"3.50", "0", "3.50"},
		{"3.50", "100", "0.00"},
		{"19.99", "33.33", "13.33"},
	}
	for _, c := range cases {
		got := Apply(decimal.RequireFromString(c.base), decimal.RequireFromString(c.percent))
		assert.True(t, got.Equal(decimal.RequireFromString(c.want)), "%s less %s%%: got %s, want %s", c.base, c.percent, got, c.want)
	}
}

func TestApplyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "cents"), -2)
		percent := decimal.NewFromInt(rapid.Int64Range(0, 100).Draw(t, "percent"))

		got := Apply(base, percent)
		if got.IsNegative() || got.GreaterThan(base) {
			t.Fatalf("Apply(%s, %s) = %s outside [0, base]", base, percent, got)
		}
		if got.Exponent() < -2 {
			t.Fatalf("Apply(%s, %s) = %s has sub-cent digits", base, percent, got)
		}
	})
}

func TestPricingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clock := testutil.NewClock()
	book := testutil.SeedBook(t, s)
	testutil.SeedDiscount(t, s, book.ID, "12.5", clock.Now().Add(-time.Hour), clock.Now().Add(time.Hour))
	engine := NewEngine(s, WithClock(clock.Now))

	first, err := engine.Quote(ctx, book.ID, model.IntentPurchase)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Quote(ctx, book.ID, model.IntentPurchase)
		require.NoError(t, err)
		assert.True(t, first.Price.Decimal.Equal(again.Price.Decimal))
		assert.Equal(t, first.DiscountID, again.DiscountID)
	}
}
