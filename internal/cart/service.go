// internal/cart/service.go
package cart

import (
	"context"

	"bookstore/internal/model"

	"github.com/google/uuid"
)

// Service defines the interface for the cart service.
type Service interface {
	AddToCart(ctx context.Context, userID, bookID uuid.UUID, intent model.Intent) (*model.CartItem, error)
	RemoveFromCart(ctx context.Context, userID, itemID uuid.UUID) error
	Cart(ctx context.Context, userID uuid.UUID) (*View, error)
	Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, error)
}
