// internal/inventory/ledger.go

// Package inventory derives copy availability from the borrow records. There
// is no stored counter to drift: available is always total minus active borrows.
package inventory

import (
	"context"
	"fmt"

	"bookstore/internal/store"

	"github.com/google/uuid"
)

// Availability is a point-in-time view of a book's stock.
type Availability struct {
	BookID    uuid.UUID `json:"book_id"`
	Total     int       `json:"total_copies"`
	Active    int       `json:"active_borrows"`
	Available int       `json:"available_copies"`
}

// Ledger answers availability questions against a store or an open transaction.
// Bind it to the transaction holding the book lock when the answer gates a write.
type Ledger struct {
	q store.Querier
}

// NewLedger returns a ledger reading through q.
func NewLedger(q store.Querier) *Ledger {
	return &Ledger{q: q}
}

// AvailableCopies returns total minus active borrows, never below zero.
func (l *Ledger) AvailableCopies(ctx context.Context, bookID uuid.UUID) (int, error) {
	a, err := l.Snapshot(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return a.Available, nil
}

// CanBorrow reports whether at least one copy is on the shelf.
func (l *Ledger) CanBorrow(ctx context.Context, bookID uuid.UUID) (bool, error) {
	available, err := l.AvailableCopies(ctx, bookID)
	if err != nil {
		return false, err
	}
	return available > 0, nil
}

// Snapshot returns total, active and available counts together.
func (l *Ledger) Snapshot(ctx context.Context, bookID uuid.UUID) (*Availability, error) {
	book, err := l.q.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	active, err := l.q.CountActiveBorrows(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("count active borrows: %w", err)
	}
	return &Availability{
		BookID:    bookID,
		Total:     book.TotalCopies,
		Active:    active,
		Available: max(book.TotalCopies-active, 0),
	}, nil
}
