// internal/circulation/limit.go
package circulation

import (
	"context"
	"fmt"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/google/uuid"
)

// LimitPolicy caps the distinct books a user may hold and forbids holding two
// copies of the same book. Run it inside the transaction that locks the user.
type LimitPolicy struct {
	limit int
}

// NewLimitPolicy returns a policy allowing limit distinct books. Non-positive
// limits fall back to model.DefaultBorrowLimit.
func NewLimitPolicy(limit int) LimitPolicy {
	if limit <= 0 {
		limit = model.DefaultBorrowLimit
	}
	return LimitPolicy{limit: limit}
}

// Limit is the number of distinct books allowed.
func (p LimitPolicy) Limit() int {
	return p.limit
}

// CheckLimit fails with ErrBorrowLimitReached when one more book would exceed the cap.
func (p LimitPolicy) CheckLimit(ctx context.Context, q store.Querier, userID uuid.UUID) error {
	held, err := q.CountDistinctActiveBooks(ctx, userID)
	if err != nil {
		return fmt.Errorf("count distinct active books: %w", err)
	}
	if held >= p.limit {
		return model.Errorf(model.ErrBorrowLimitReached, "%d of %d books held", held, p.limit)
	}
	return nil
}

// CheckDuplicate fails with ErrDuplicateBorrow when the user already holds the book.
func (p LimitPolicy) CheckDuplicate(ctx context.Context, q store.Querier, userID, bookID uuid.UUID) error {
	active, err := q.GetActiveBorrow(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("get active borrow: %w", err)
	}
	if active != nil {
		return model.Errorf(model.ErrDuplicateBorrow, "borrowed on %s", active.StartDate.Format("2006-01-02"))
	}
	return nil
}
