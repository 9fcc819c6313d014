// internal/circulation/domain.go
package circulation

import (
	"context"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/waitlist"

	"github.com/google/uuid"
)

// Queue is the part of the waiting list a return needs.
type Queue interface {
	NotifyNext(ctx context.Context, bookID uuid.UUID) (*waitlist.Notification, error)
}

// ReturnResult is a committed return plus the outcome of notifying the next
// user in line. NotifyErr is set when the queue could not be advanced; the
// return itself still stands.
type ReturnResult struct {
	Borrow       *model.Borrow          `json:"borrow"`
	Notification *waitlist.Notification `json:"notification,omitempty"`
	NotifyErr    error                  `json:"-"`
}

// Degraded reports whether the follow-up notification did not go through.
func (r *ReturnResult) Degraded() bool {
	return r.NotifyErr != nil || (r.Notification != nil && !r.Notification.Delivered)
}

// SweepReport summarizes one overdue sweep.
type SweepReport struct {
	At       time.Time   `json:"at"`
	Expired  int         `json:"expired"`
	Books    []uuid.UUID `json:"books"`
	Notified int         `json:"notified"`
	Degraded int         `json:"degraded"`
	Failures int         `json:"failures"`
}
