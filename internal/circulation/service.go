// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	Borrow(ctx context.Context, userID, bookID uuid.UUID) (*model.Borrow, error)
	// BorrowTx runs the borrow checks and insert inside a caller's transaction.
	BorrowTx(ctx context.Context, tx store.Tx, userID, bookID uuid.UUID) (*model.Borrow, error)
	Return(ctx context.Context, userID, bookID uuid.UUID) (*ReturnResult, error)
	ActiveBorrows(ctx context.Context, userID uuid.UUID) ([]*model.Borrow, error)
	History(ctx context.Context, userID uuid.UUID) ([]*model.Borrow, error)
	ExpireOverdue(ctx context.Context, at time.Time) (*SweepReport, error)
}
