// internal/membership/service.go
package membership

import (
	"context"

	"bookstore/internal/model"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, email, name string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
}
