// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/eventlog"
	"bookstore/internal/inventory"
	"bookstore/internal/model"
	"bookstore/internal/store"
	"bookstore/internal/waitlist"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the service.
type Option func(*service)

// WithLimit sets the distinct-book cap.
func WithLimit(limit int) Option {
	return func(s *service) {
		s.limits = NewLimitPolicy(limit)
	}
}

// WithLoanPeriod sets how long a borrow lasts.
func WithLoanPeriod(period time.Duration) Option {
	return func(s *service) {
		if period > 0 {
			s.loanPeriod = period
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMeterProvider sets where the service counters are recorded.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *service) {
		s.meters = mp
	}
}

// WithRetry sets the retry options used for every transaction.
func WithRetry(opts ...store.RetryOption) Option {
	return func(s *service) {
		s.retry = opts
	}
}

// service implements the Service interface.
type service struct {
	store      store.Store
	queue      Queue
	events     *eventlog.Log
	limits     LimitPolicy
	loanPeriod time.Duration
	now        func() time.Time
	logger     *slog.Logger
	retry      []store.RetryOption
	tracer     trace.Tracer
	meters     metric.MeterProvider

	borrows    metric.Int64Counter
	rejections metric.Int64Counter
	returns    metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(s store.Store, queue Queue, events *eventlog.Log, opts ...Option) Service {
	svc := &service{
		store:      s,
		queue:      queue,
		events:     events,
		limits:     NewLimitPolicy(model.DefaultBorrowLimit),
		loanPeriod: model.DefaultLoanPeriod,
		now:        time.Now,
		logger:     slog.Default(),
		tracer:     otel.Tracer("bookstore/circulation"),
		meters:     otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	meter := svc.meters.Meter("bookstore/circulation")
	svc.borrows, _ = meter.Int64Counter("bookstore.circulation.borrows",
		metric.WithDescription("Borrows created"))
	svc.rejections, _ = meter.Int64Counter("bookstore.circulation.rejections",
		metric.WithDescription("Borrows refused, by error code"))
	svc.returns, _ = meter.Int64Counter("bookstore.circulation.returns",
		metric.WithDescription("Borrows closed, by reason"))
	return svc
}

// Borrow lends one copy in its own transaction, retrying lost races.
func (s *service) Borrow(ctx context.Context, userID, bookID uuid.UUID) (borrow *model.Borrow, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
	))
	defer func() { endSpan(span, err) }()

	err = store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		var err error
		borrow, err = s.BorrowTx(ctx, tx, userID, bookID)
		return err
	}, s.retry...)
	if err != nil {
		return nil, model.Infra("borrow", err)
	}
	return borrow, nil
}

// BorrowTx locks the user then the book, runs the policy and ledger checks
// and inserts the borrow. Nothing is written unless every check passes.
func (s *service) BorrowTx(ctx context.Context, tx store.Tx, userID, bookID uuid.UUID) (*model.Borrow, error) {
	borrow, err := s.borrowTx(ctx, tx, userID, bookID)
	if err != nil {
		if code := model.Code(err); code != "" {
			s.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
		}
		return nil, err
	}
	s.borrows.Add(ctx, 1)
	return borrow, nil
}

func (s *service) borrowTx(ctx context.Context, tx store.Tx, userID, bookID uuid.UUID) (*model.Borrow, error) {
	if _, err := tx.LockUser(ctx, userID); err != nil {
		return nil, err
	}
	book, err := tx.LockBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.Borrowable() {
		return nil, model.Errorf(model.ErrNotBorrowable, "%q", book.Title)
	}

	if err := s.limits.CheckDuplicate(ctx, tx, userID, bookID); err != nil {
		return nil, err
	}
	if err := s.limits.CheckLimit(ctx, tx, userID); err != nil {
		return nil, err
	}

	canBorrow, err := inventory.NewLedger(tx).CanBorrow(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !canBorrow {
		return nil, model.Errorf(model.ErrCapacityExceeded, "%q", book.Title)
	}

	borrow := model.NewBorrow(userID, bookID, s.now().UTC(), s.loanPeriod)
	if err := tx.InsertBorrow(ctx, borrow); err != nil {
		return nil, err
	}
	err = s.events.Record(ctx, tx, borrow.ID, eventlog.AggregateBorrow, eventlog.BorrowCreated, eventlog.BorrowCreatedEvent{
		BorrowID: borrow.ID,
		UserID:   userID,
		BookID:   bookID,
		EndDate:  borrow.EndDate,
	})
	if err != nil {
		return nil, err
	}

	// A queued user who got a copy some other way no longer waits for it.
	entry, err := tx.GetWaitingEntry(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("get waiting entry: %w", err)
	}
	if entry != nil {
		if err := waitlist.RemoveEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
		err = s.events.Record(ctx, tx, bookID, eventlog.AggregateBook, eventlog.WaitlistLeft,
			eventlog.WaitlistEvent{UserID: userID, Position: entry.Position})
		if err != nil {
			return nil, err
		}
	}

	return borrow, nil
}

// Return closes the user's active borrow of the book, then advances the
// book's waiting list. The return commits before anyone is notified.
func (s *service) Return(ctx context.Context, userID, bookID uuid.UUID) (result *ReturnResult, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
	))
	defer func() { endSpan(span, err) }()

	var borrow *model.Borrow
	err = store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.LockBook(ctx, bookID); err != nil {
			return err
		}

		var err error
		borrow, err = tx.GetActiveBorrow(ctx, userID, bookID)
		if err != nil {
			return fmt.Errorf("get active borrow: %w", err)
		}
		if borrow == nil {
			return model.Errorf(model.ErrNotFound, "no active borrow of book %s", bookID)
		}

		return s.close(ctx, tx, borrow, s.now().UTC(), eventlog.BorrowReturned)
	}, s.retry...)
	if err != nil {
		return nil, model.Infra("return", err)
	}
	s.returns.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "returned")))

	result = &ReturnResult{Borrow: borrow}
	result.Notification, result.NotifyErr = s.queue.NotifyNext(ctx, bookID)
	if result.NotifyErr != nil {
		s.logger.WarnContext(ctx, "return committed but waiting list not advanced",
			"book_id", bookID, "borrow_id", borrow.ID, "error", result.NotifyErr)
	}
	span.SetAttributes(attribute.Bool("return.degraded", result.Degraded()))
	return result, nil
}

// close marks the borrow returned at the given time and records why.
func (s *service) close(ctx context.Context, tx store.Tx, borrow *model.Borrow, at time.Time, eventType string) error {
	ok, err := tx.MarkBorrowReturned(ctx, borrow.ID, at)
	if err != nil {
		return err
	}
	if !ok {
		return model.Errorf(model.ErrNotFound, "borrow %s already returned", borrow.ID)
	}
	borrow.Returned = true
	borrow.ReturnedAt = &at

	return s.events.Record(ctx, tx, borrow.ID, eventlog.AggregateBorrow, eventType, eventlog.BorrowClosedEvent{
		BorrowID:   borrow.ID,
		UserID:     borrow.UserID,
		BookID:     borrow.BookID,
		ReturnedAt: at,
	})
}

// ActiveBorrows lists the copies the user holds now.
func (s *service) ActiveBorrows(ctx context.Context, userID uuid.UUID) ([]*model.Borrow, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, model.Infra("active borrows", err)
	}
	borrows, err := s.store.BorrowsByUser(ctx, userID, true)
	if err != nil {
		return nil, model.Infra("active borrows", err)
	}
	return borrows, nil
}

// History lists every borrow the user has made, oldest first.
func (s *service) History(ctx context.Context, userID uuid.UUID) ([]*model.Borrow, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, model.Infra("borrow history", err)
	}
	borrows, err := s.store.BorrowsByUser(ctx, userID, false)
	if err != nil {
		return nil, model.Infra("borrow history", err)
	}
	return borrows, nil
}

// ExpireOverdue closes every active borrow whose end date is not after at and
// advances the waiting list once per freed copy. Each borrow is closed in its
// own transaction, so one failure does not hold back the rest.
func (s *service) ExpireOverdue(ctx context.Context, at time.Time) (report *SweepReport, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.expire_overdue")
	defer func() { endSpan(span, err) }()

	overdue, err := s.store.OverdueBorrows(ctx, at)
	if err != nil {
		return nil, model.Infra("list overdue borrows", err)
	}

	report = &SweepReport{At: at}
	seen := make(map[uuid.UUID]bool)
	for _, b := range overdue {
		err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockUser(ctx, b.UserID); err != nil {
				return err
			}
			if _, err := tx.LockBook(ctx, b.BookID); err != nil {
				return err
			}
			return s.close(ctx, tx, b, at, eventlog.BorrowExpired)
		}, s.retry...)
		if model.Code(err) == model.CodeNotFound {
			// Returned by hand since the overdue list was read.
			continue
		}
		if err != nil {
			report.Failures++
			s.logger.ErrorContext(ctx, "expire borrow", "borrow_id", b.ID, "error", err)
			continue
		}

		report.Expired++
		s.returns.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "expired")))
		if !seen[b.BookID] {
			seen[b.BookID] = true
			report.Books = append(report.Books, b.BookID)
		}

		n, err := s.queue.NotifyNext(ctx, b.BookID)
		switch {
		case err != nil:
			report.Failures++
			s.logger.WarnContext(ctx, "borrow expired but waiting list not advanced",
				"book_id", b.BookID, "borrow_id", b.ID, "error", err)
		case n == nil:
		case n.Delivered:
			report.Notified++
		default:
			report.Degraded++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.expired", report.Expired),
		attribute.Int("sweep.failures", report.Failures),
	)
	return report, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if model.IsInfra(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
