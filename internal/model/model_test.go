package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchByCode(t *testing.T) {
	err := Errorf(ErrCapacityExceeded, "%q", "Dune")

	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.False(t, errors.Is(err, ErrBorrowLimitReached))
	assert.Equal(t, CodeCapacityExceeded, Code(err))
	assert.Equal(t, `no copies available: "Dune"`, err.Error())

	wrapped := fmt.Errorf("borrow: %w", err)
	assert.True(t, errors.Is(wrapped, ErrCapacityExceeded))
	assert.True(t, IsBusiness(wrapped))
}

func TestInfraLeavesBusinessErrorsAlone(t *testing.T) {
	assert.NoError(t, Infra("op", nil))

	business := Errorf(ErrNotFound, "book")
	assert.Same(t, business, Infra("op", business))

	cause := errors.New("connection reset")
	infra := Infra("load", cause)
	require.True(t, IsInfra(infra))
	assert.False(t, IsBusiness(infra))
	assert.ErrorIs(t, infra, cause)
	assert.Equal(t, "load: connection reset", infra.Error())

	assert.Same(t, infra, Infra("outer", infra))
	assert.Equal(t, ErrCode(""), Code(cause))
}

func TestBookPrices(t *testing.T) {
	borrow := decimal.NewNullDecimal(decimal.NewFromInt(3))
	purchase := decimal.NewNullDecimal(decimal.NewFromInt(10))

	b := &Book{BorrowPrice: borrow, PurchasePrice: purchase}
	assert.True(t, b.Borrowable())
	assert.Equal(t, borrow, b.BasePrice(IntentBorrow))
	assert.Equal(t, purchase, b.BasePrice(IntentPurchase))
	assert.False(t, b.BasePrice(Intent("rent")).Valid)

	b.BuyOnly = true
	assert.False(t, b.Borrowable())
	assert.False(t, b.BasePrice(IntentBorrow).Valid)

	noBorrow := &Book{PurchasePrice: purchase}
	assert.False(t, noBorrow.Borrowable())
}

func TestNewBorrowRunsForLoanPeriod(t *testing.T) {
	start := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	b := NewBorrow([16]byte{1}, [16]byte{2}, start, DefaultLoanPeriod)

	assert.True(t, b.Active())
	assert.Equal(t, start.AddDate(0, 0, 30), b.EndDate)
}

func TestDiscountWindow(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	d := &Discount{StartDate: start, EndDate: start.AddDate(0, 0, 7), Active: true}

	assert.True(t, d.AppliesAt(start))
	assert.True(t, d.AppliesAt(start.AddDate(0, 0, 6)))
	assert.False(t, d.AppliesAt(start.AddDate(0, 0, 7)), "end is exclusive")
	assert.False(t, d.AppliesAt(start.Add(-time.Second)))

	d.Active = false
	assert.False(t, d.AppliesAt(start))

	assert.True(t, d.Overlaps(start.AddDate(0, 0, 6), start.AddDate(0, 0, 9)))
	assert.False(t, d.Overlaps(start.AddDate(0, 0, 7), start.AddDate(0, 0, 9)), "touching windows do not overlap")
	assert.False(t, d.Overlaps(start.AddDate(0, 0, -3), start))
}

func TestIntentValid(t *testing.T) {
	assert.True(t, IntentBorrow.Valid())
	assert.True(t, IntentPurchase.Valid())
	assert.False(t, Intent("").Valid())
	assert.False(t, Intent("rent").Valid())
}
