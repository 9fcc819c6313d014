// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"bookstore/internal/model"

	"github.com/google/uuid"
)

var (
	// ErrConcurrencyConflict signals that a transaction lost a race and may be retried.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Querier is the read side shared by the store and open transactions.
// Single-entity lookups that may legitimately miss return (nil, nil);
// GetBook, GetUser and GetDiscount return model.ErrNotFound instead.
type Querier interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)

	GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error)
	ListBooks(ctx context.Context) ([]*model.Book, error)

	CountActiveBorrows(ctx context.Context, bookID uuid.UUID) (int, error)
	CountDistinctActiveBooks(ctx context.Context, userID uuid.UUID) (int, error)
	GetActiveBorrow(ctx context.Context, userID, bookID uuid.UUID) (*model.Borrow, error)
	// ActiveBorrowsByBook is ordered by end date, soonest first.
	ActiveBorrowsByBook(ctx context.Context, bookID uuid.UUID) ([]*model.Borrow, error)
	BorrowsByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*model.Borrow, error)
	OverdueBorrows(ctx context.Context, at time.Time) ([]*model.Borrow, error)

	GetDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error)
	DiscountsByBook(ctx context.Context, bookID uuid.UUID) ([]*model.Discount, error)
	ActiveDiscountAt(ctx context.Context, bookID uuid.UUID, at time.Time) (*model.Discount, error)

	// WaitingList is ordered by position.
	WaitingList(ctx context.Context, bookID uuid.UUID) ([]*model.WaitingListEntry, error)
	GetWaitingEntry(ctx context.Context, userID, bookID uuid.UUID) (*model.WaitingListEntry, error)
	MaxWaitingPosition(ctx context.Context, bookID uuid.UUID) (int, error)

	GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// CartItems is ordered by the time items were added.
	CartItems(ctx context.Context, cartID uuid.UUID) ([]*model.CartItem, error)
	PurchasesByUser(ctx context.Context, userID uuid.UUID) ([]*model.Purchase, error)

	Events(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]model.Event, error)
	LatestEventVersion(ctx context.Context, aggregateID uuid.UUID) (int, error)
}

// Tx is an open transaction. Locks are held until commit or rollback.
// Lock order is user before book.
type Tx interface {
	Querier

	// LockUser locks the user's row, serializing per-user limits.
	LockUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	// LockBook locks the book's row, serializing capacity checks and queue edits.
	LockBook(ctx context.Context, id uuid.UUID) (*model.Book, error)

	InsertUser(ctx context.Context, u *model.User) error
	InsertBook(ctx context.Context, b *model.Book) error
	UpdateBookCopies(ctx context.Context, id uuid.UUID, total int) error

	InsertBorrow(ctx context.Context, b *model.Borrow) error
	// MarkBorrowReturned reports false when the borrow was already returned.
	MarkBorrowReturned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	InsertDiscount(ctx context.Context, d *model.Discount) error
	UpdateDiscount(ctx context.Context, d *model.Discount) error

	InsertWaitingEntry(ctx context.Context, e *model.WaitingListEntry) error
	DeleteWaitingEntry(ctx context.Context, id uuid.UUID) error
	// ShiftWaitingPositions decrements every position greater than after.
	ShiftWaitingPositions(ctx context.Context, bookID uuid.UUID, after int) error

	EnsureCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	InsertCartItem(ctx context.Context, item *model.CartItem) error
	DeleteCartItem(ctx context.Context, id uuid.UUID) error
	InsertPurchase(ctx context.Context, p *model.Purchase) error

	// AppendEvent fails with ErrConcurrencyConflict when the version is taken.
	AppendEvent(ctx context.Context, e *model.Event) error
}

// TxFunc runs inside a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the relational store: the only shared mutable state of the core.
type Store interface {
	Querier
	InTx(ctx context.Context, fn TxFunc) error
	Close() error
}

// RunInTx runs fn in a transaction, retrying when it loses a concurrency race.
func RunInTx(ctx context.Context, s Store, fn TxFunc, opts ...RetryOption) error {
	return RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return s.InTx(ctx, fn)
	}, opts...)
}
