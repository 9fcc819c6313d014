// internal/eventlog/payloads.go
package eventlog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BorrowCreatedEvent is recorded when a copy is lent.
type BorrowCreatedEvent struct {
	BorrowID uuid.UUID `json:"borrow_id"`
	UserID   uuid.UUID `json:"user_id"`
	BookID   uuid.UUID `json:"book_id"`
	EndDate  time.Time `json:"end_date"`
}

// BorrowClosedEvent is recorded when a copy comes back, by hand or by the sweep.
type BorrowClosedEvent struct {
	BorrowID   uuid.UUID `json:"borrow_id"`
	UserID     uuid.UUID `json:"user_id"`
	BookID     uuid.UUID `json:"book_id"`
	ReturnedAt time.Time `json:"returned_at"`
}

// WaitlistEvent is recorded against the book for joins, leaves and notifications.
type WaitlistEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	Position int       `json:"position"`
}

// DiscountEvent is recorded against the discount.
type DiscountEvent struct {
	BookID    uuid.UUID       `json:"book_id"`
	Percent   decimal.Decimal `json:"percent"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Active    bool            `json:"active"`
}

// PurchaseEvent is recorded against the user.
type PurchaseEvent struct {
	PurchaseID uuid.UUID       `json:"purchase_id"`
	BookID     uuid.UUID       `json:"book_id"`
	Price      decimal.Decimal `json:"price"`
}

// BookEvent is recorded when a title is added or its stock changes.
type BookEvent struct {
	Title       string `json:"title,omitempty"`
	TotalCopies int    `json:"total_copies"`
}

// UserEvent is recorded on registration.
type UserEvent struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
