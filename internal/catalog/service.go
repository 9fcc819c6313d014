// internal/catalog/service.go
package catalog

import (
	"context"

	"bookstore/internal/model"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, in NewBook) (*model.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*BookView, error)
	ListBooks(ctx context.Context) ([]*BookView, error)
	UpdateCopies(ctx context.Context, id uuid.UUID, total int) (*model.Book, error)

	CreateDiscount(ctx context.Context, bookID uuid.UUID, in DiscountInput) (*model.Discount, error)
	UpdateDiscount(ctx context.Context, id uuid.UUID, in DiscountInput) (*model.Discount, error)
	DeactivateDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error)
	Discounts(ctx context.Context, bookID uuid.UUID) ([]*model.Discount, error)
}
