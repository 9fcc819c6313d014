// internal/cart/domain.go
package cart

import (
	"bookstore/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// View is a cart with its items as they were priced when added. Subtotal sums
// the snapshot prices; checkout may charge differently.
type View struct {
	Cart     *model.Cart       `json:"cart"`
	Items    []*model.CartItem `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
}

// Line is one cart item that went through at checkout. PriceChanged is set
// when the charged price differs from the snapshot taken when it was added.
type Line struct {
	ItemID        uuid.UUID       `json:"item_id"`
	BookID        uuid.UUID       `json:"book_id"`
	Intent        model.Intent    `json:"intent"`
	SnapshotPrice decimal.Decimal `json:"snapshot_price"`
	Price         decimal.Decimal `json:"price"`
	DiscountID    uuid.NullUUID   `json:"discount_id"`
	BorrowID      uuid.NullUUID   `json:"borrow_id"`
	PurchaseID    uuid.NullUUID   `json:"purchase_id"`
	PriceChanged  bool            `json:"price_changed"`
}

// Failure is one cart item that was refused. The item stays in the cart.
type Failure struct {
	ItemID  uuid.UUID     `json:"item_id"`
	BookID  uuid.UUID     `json:"book_id"`
	Intent  model.Intent  `json:"intent"`
	Code    model.ErrCode `json:"code"`
	Message string        `json:"message"`
}

// CheckoutResult lists the outcome of every item. Items succeed or fail on
// their own, so a refused borrow does not hold back a purchase.
type CheckoutResult struct {
	Lines    []Line          `json:"lines"`
	Failures []Failure       `json:"failures"`
	Total    decimal.Decimal `json:"total"`
}

// Complete reports whether every item went through.
func (r *CheckoutResult) Complete() bool {
	return len(r.Failures) == 0
}
