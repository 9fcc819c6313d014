// internal/model/domain.go
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultLoanPeriod is the fixed length of every borrow.
	DefaultLoanPeriod = 30 * 24 * time.Hour
	// DefaultBorrowLimit is the number of distinct books a user may hold at once.
	DefaultBorrowLimit = 3
	// DefaultMaxDiscountWindow bounds the length of a discount window.
	DefaultMaxDiscountWindow = 7 * 24 * time.Hour
)

// Intent distinguishes borrowing a copy from buying one.
type Intent string

const (
	IntentBorrow   Intent = "borrow"
	IntentPurchase Intent = "purchase"
)

// Valid reports whether the intent is one of the known values.
func (i Intent) Valid() bool {
	return i == IntentBorrow || i == IntentPurchase
}

// User is the slice of an account the core needs: who to notify.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Book is a catalog title. Available copies are never stored; they are derived
// from the set of active borrows.
type Book struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	ISBN          string              `json:"isbn" db:"isbn"`
	Title         string              `json:"title" db:"title"`
	Author        string              `json:"author" db:"author"`
	TotalCopies   int                 `json:"total_copies" db:"total_copies"`
	PurchasePrice decimal.NullDecimal `json:"purchase_price" db:"purchase_price"`
	BorrowPrice   decimal.NullDecimal `json:"borrow_price" db:"borrow_price"`
	BuyOnly       bool                `json:"buy_only" db:"buy_only"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

// BasePrice returns the undiscounted price for the given intent.
func (b *Book) BasePrice(intent Intent) decimal.NullDecimal {
	switch intent {
	case IntentBorrow:
		if b.BuyOnly {
			return decimal.NullDecimal{}
		}
		return b.BorrowPrice
	case IntentPurchase:
		return b.PurchasePrice
	default:
		return decimal.NullDecimal{}
	}
}

// Borrowable reports whether copies of this book may be lent at all.
func (b *Book) Borrowable() bool {
	return !b.BuyOnly && b.BorrowPrice.Valid
}

// Borrow is a loan of one copy to one user.
type Borrow struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BookID     uuid.UUID  `json:"book_id" db:"book_id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	StartDate  time.Time  `json:"start_date" db:"start_date"`
	EndDate    time.Time  `json:"end_date" db:"end_date"`
	Returned   bool       `json:"returned" db:"returned"`
	ReturnedAt *time.Time `json:"returned_at,omitempty" db:"returned_at"`
}

// NewBorrow starts a loan at start lasting period.
func NewBorrow(userID, bookID uuid.UUID, start time.Time, period time.Duration) *Borrow {
	return &Borrow{
		ID:        uuid.New(),
		BookID:    bookID,
		UserID:    userID,
		StartDate: start,
		EndDate:   start.Add(period),
	}
}

// Active reports whether the copy is still out.
func (b *Borrow) Active() bool {
	return !b.Returned
}

// Discount is a percentage off a book's prices during [StartDate, EndDate).
type Discount struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	BookID    uuid.UUID       `json:"book_id" db:"book_id"`
	Percent   decimal.Decimal `json:"percent" db:"percent"`
	StartDate time.Time       `json:"start_date" db:"start_date"`
	EndDate   time.Time       `json:"end_date" db:"end_date"`
	Active    bool            `json:"active" db:"active"`
}

// AppliesAt reports whether the discount is switched on and its window contains t.
func (d *Discount) AppliesAt(t time.Time) bool {
	return d.Active && !t.Before(d.StartDate) && t.Before(d.EndDate)
}

// Overlaps reports whether the two windows share any instant.
func (d *Discount) Overlaps(start, end time.Time) bool {
	return d.StartDate.Before(end) && start.Before(d.EndDate)
}

// WaitingListEntry is one user's place in a book's FIFO queue.
type WaitingListEntry struct {
	ID       uuid.UUID `json:"id" db:"id"`
	BookID   uuid.UUID `json:"book_id" db:"book_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
	Position int       `json:"position" db:"position"`
	Notified bool      `json:"notified" db:"notified"`
}

// Cart holds a user's pending borrow and purchase intents.
type Cart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CartItem snapshots the price seen when the item was added. The snapshot is
// for display; checkout always prices again.
type CartItem struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	CartID     uuid.UUID       `json:"cart_id" db:"cart_id"`
	BookID     uuid.UUID       `json:"book_id" db:"book_id"`
	Intent     Intent          `json:"intent" db:"intent"`
	Price      decimal.Decimal `json:"price" db:"price"`
	DiscountID uuid.NullUUID   `json:"discount_id" db:"discount_id"`
	AddedAt    time.Time       `json:"added_at" db:"added_at"`
}

// Purchase is a committed purchase line.
type Purchase struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	BookID      uuid.UUID       `json:"book_id" db:"book_id"`
	Price       decimal.Decimal `json:"price" db:"price"`
	DiscountID  uuid.NullUUID   `json:"discount_id" db:"discount_id"`
	PurchasedAt time.Time       `json:"purchased_at" db:"purchased_at"`
}

// Event is one entry of the activity log.
type Event struct {
	ID            int64           `json:"id" db:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	EventType     string          `json:"event_type" db:"event_type"`
	EventData     json.RawMessage `json:"event_data" db:"event_data"`
	Version       int             `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
