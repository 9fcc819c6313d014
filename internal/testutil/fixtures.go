// internal/testutil/fixtures.go

// Package testutil seeds stores and controls time for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// T is the part of testing.TB the fixtures need. Both *testing.T and
// *rapid.T satisfy it.
type T interface {
	Errorf(format string, args ...any)
	FailNow()
}

func helper(t T) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
}

// Epoch is the default start of a test clock.
var Epoch = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at Epoch.
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Price parses a decimal literal.
func Price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// BookOption adjusts a seeded book.
type BookOption func(*model.Book)

// Copies sets the total copies.
func Copies(n int) BookOption {
	return func(b *model.Book) { b.TotalCopies = n }
}

// BorrowPrice sets the borrow price.
func BorrowPrice(p string) BookOption {
	return func(b *model.Book) { b.BorrowPrice = Price(p) }
}

// PurchasePrice sets the purchase price.
func PurchasePrice(p string) BookOption {
	return func(b *model.Book) { b.PurchasePrice = Price(p) }
}

// NoPurchase removes the purchase price.
func NoPurchase() BookOption {
	return func(b *model.Book) { b.PurchasePrice = decimal.NullDecimal{} }
}

// BuyOnly marks the book as not lendable.
func BuyOnly() BookOption {
	return func(b *model.Book) { b.BuyOnly = true }
}

// Tx runs fn in a transaction and fails the test on error.
func Tx(t T, s store.Store, fn store.TxFunc) {
	helper(t)
	require.NoError(t, s.InTx(context.Background(), fn))
}

// SeedUser inserts a user with a unique address.
func SeedUser(t T, s store.Store) *model.User {
	helper(t)
	id := uuid.New()
	u := &model.User{
		ID:        id,
		Email:     fmt.Sprintf("reader-%s@example.com", id.String()[:8]),
		Name:      "Reader " + id.String()[:4],
		CreatedAt: Epoch,
	}
	Tx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertUser(ctx, u)
	})
	return u
}

// SeedBook inserts a lendable, purchasable book with one copy unless
// options say otherwise.
func SeedBook(t T, s store.Store, opts ...BookOption) *model.Book {
	helper(t)
	id := uuid.New()
	b := &model.Book{
		ID:            id,
		ISBN:          "978" + id.String()[:10],
		Title:         "Title " + id.String()[:8],
		Author:        "Author",
		TotalCopies:   1,
		BorrowPrice:   Price("3.50"),
		PurchasePrice: Price("10.00"),
		CreatedAt:     Epoch,
		UpdatedAt:     Epoch,
	}
	for _, opt := range opts {
		opt(b)
	}
	Tx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertBook(ctx, b)
	})
	return b
}

// SeedDiscount inserts an active discount for [start, end).
func SeedDiscount(t T, s store.Store, bookID uuid.UUID, percent string, start, end time.Time) *model.Discount {
	helper(t)
	d := &model.Discount{
		ID:        uuid.New(),
		BookID:    bookID,
		Percent:   decimal.RequireFromString(percent),
		StartDate: start,
		EndDate:   end,
		Active:    true,
	}
	Tx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDiscount(ctx, d)
	})
	return d
}

// SeedBorrow inserts an active borrow starting at start.
func SeedBorrow(t T, s store.Store, userID, bookID uuid.UUID, start time.Time) *model.Borrow {
	helper(t)
	b := model.NewBorrow(userID, bookID, start, model.DefaultLoanPeriod)
	Tx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertBorrow(ctx, b)
	})
	return b
}

// SeedWaiting appends userID to the book's waiting list.
func SeedWaiting(t T, s store.Store, userID, bookID uuid.UUID) *model.WaitingListEntry {
	helper(t)
	var e *model.WaitingListEntry
	Tx(t, s, func(ctx context.Context, tx store.Tx) error {
		last, err := tx.MaxWaitingPosition(ctx, bookID)
		if err != nil {
			return err
		}
		e = &model.WaitingListEntry{
			ID:       uuid.New(),
			BookID:   bookID,
			UserID:   userID,
			JoinedAt: Epoch,
			Position: last + 1,
		}
		return tx.InsertWaitingEntry(ctx, e)
	})
	return e
}
