// internal/catalog/domain.go
package catalog

import (
	"context"
	"time"

	"bookstore/internal/inventory"
	"bookstore/internal/model"
	"bookstore/internal/waitlist"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewBook is the input for adding a title.
type NewBook struct {
	ISBN          string              `json:"isbn" validate:"omitempty,max=20"`
	Title         string              `json:"title" validate:"required,max=500"`
	Author        string              `json:"author" validate:"max=300"`
	TotalCopies   int                 `json:"total_copies" validate:"gte=0"`
	PurchasePrice decimal.NullDecimal `json:"purchase_price"`
	BorrowPrice   decimal.NullDecimal `json:"borrow_price"`
	BuyOnly       bool                `json:"buy_only"`
}

// DiscountInput is the input for creating or editing a discount.
type DiscountInput struct {
	Percent   decimal.Decimal `json:"percent"`
	StartDate time.Time       `json:"start_date" validate:"required"`
	EndDate   time.Time       `json:"end_date" validate:"required"`
	Active    bool            `json:"active"`
}

// BookView is a title with its live availability and current prices.
type BookView struct {
	*model.Book
	Availability           *inventory.Availability `json:"availability"`
	EffectiveBorrowPrice   decimal.NullDecimal     `json:"effective_borrow_price"`
	EffectivePurchasePrice decimal.NullDecimal     `json:"effective_purchase_price"`
	DiscountID             uuid.NullUUID           `json:"discount_id"`
}

// Queue is the part of the waiting list that added stock needs.
type Queue interface {
	NotifyNext(ctx context.Context, bookID uuid.UUID) (*waitlist.Notification, error)
}
