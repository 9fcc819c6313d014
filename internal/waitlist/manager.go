// internal/waitlist/manager.go

// Package waitlist keeps a FIFO queue per book. Positions are 1-based and
// dense: removing position k moves every later entry up by one.
package waitlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/eventlog"
	"bookstore/internal/inventory"
	"bookstore/internal/model"
	"bookstore/internal/notify"
	"bookstore/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Notification reports the outcome of NotifyNext. The queue change is
// committed even when Delivered is false.
type Notification struct {
	Entry     *model.WaitingListEntry `json:"entry"`
	User      *model.User             `json:"user"`
	Delivered bool                    `json:"delivered"`
	Err       error                   `json:"-"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for degraded notifications.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMeterProvider sets where the join and notification counters are recorded.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) {
		m.meters = mp
	}
}

// WithRetry sets the retry options used for every transaction.
func WithRetry(opts ...store.RetryOption) Option {
	return func(m *Manager) {
		m.retry = opts
	}
}

// Manager serializes queue edits per book: an in-process lock keyed by book id,
// then a transaction holding the book row lock for other processes.
type Manager struct {
	store    store.Store
	notifier notify.Notifier
	events   *eventlog.Log
	locks    *keyedLock
	logger   *slog.Logger
	now      func() time.Time
	retry    []store.RetryOption
	tracer   trace.Tracer
	meters   metric.MeterProvider

	joins         metric.Int64Counter
	notifications metric.Int64Counter
}

// NewManager returns a manager that sends availability emails through notifier.
func NewManager(s store.Store, notifier notify.Notifier, events *eventlog.Log, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		notifier: notifier,
		events:   events,
		locks:    newKeyedLock(),
		logger:   slog.Default(),
		now:      time.Now,
		tracer:   otel.Tracer("bookstore/waitlist"),
		meters:   otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := m.meters.Meter("bookstore/waitlist")
	m.joins, _ = meter.Int64Counter("bookstore.waitlist.joins",
		metric.WithDescription("Users added to a waiting list"))
	m.notifications, _ = meter.Int64Counter("bookstore.waitlist.notifications",
		metric.WithDescription("Waiting list heads notified, by delivery outcome"))
	return m
}

// Join appends the user to the book's queue at position max+1.
func (m *Manager) Join(ctx context.Context, userID, bookID uuid.UUID) (entry *model.WaitingListEntry, err error) {
	ctx, span := m.start(ctx, "waitlist.join", userID, bookID)
	defer func() { m.end(span, err) }()

	unlock := m.locks.Lock(bookID)
	defer unlock()

	err = store.RunInTx(ctx, m.store, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !book.Borrowable() {
			return model.Errorf(model.ErrNotBorrowable, "%q", book.Title)
		}

		existing, err := tx.GetWaitingEntry(ctx, userID, bookID)
		if err != nil {
			return fmt.Errorf("get waiting entry: %w", err)
		}
		if existing != nil {
			return model.Errorf(model.ErrAlreadyQueued, "position %d", existing.Position)
		}

		borrow, err := tx.GetActiveBorrow(ctx, userID, bookID)
		if err != nil {
			return fmt.Errorf("get active borrow: %w", err)
		}
		if borrow != nil {
			return model.Errorf(model.ErrDuplicateBorrow, "%q", book.Title)
		}

		canBorrow, err := inventory.NewLedger(tx).CanBorrow(ctx, bookID)
		if err != nil {
			return err
		}
		if canBorrow {
			return model.Errorf(model.ErrCopiesAvailable, "%q", book.Title)
		}

		highest, err := tx.MaxWaitingPosition(ctx, bookID)
		if err != nil {
			return fmt.Errorf("max waiting position: %w", err)
		}

		entry = &model.WaitingListEntry{
			ID:       uuid.New(),
			BookID:   bookID,
			UserID:   userID,
			JoinedAt: m.now().UTC(),
			Position: highest + 1,
		}
		if err := tx.InsertWaitingEntry(ctx, entry); err != nil {
			return err
		}

		return m.events.Record(ctx, tx, bookID, eventlog.AggregateBook, eventlog.WaitlistJoined,
			eventlog.WaitlistEvent{UserID: userID, Position: entry.Position})
	}, m.retry...)
	if err != nil {
		return nil, model.Infra("join waiting list", err)
	}

	m.joins.Add(ctx, 1)
	span.SetAttributes(attribute.Int("waitlist.position", entry.Position))
	return entry, nil
}

// Leave removes the user from the queue and closes the gap.
func (m *Manager) Leave(ctx context.Context, userID, bookID uuid.UUID) (err error) {
	ctx, span := m.start(ctx, "waitlist.leave", userID, bookID)
	defer func() { m.end(span, err) }()

	unlock := m.locks.Lock(bookID)
	defer unlock()

	err = store.RunInTx(ctx, m.store, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockBook(ctx, bookID); err != nil {
			return err
		}
		entry, err := tx.GetWaitingEntry(ctx, userID, bookID)
		if err != nil {
			return fmt.Errorf("get waiting entry: %w", err)
		}
		if entry == nil {
			return model.Errorf(model.ErrNotFound, "user %s is not queued for book %s", userID, bookID)
		}
		if err := RemoveEntry(ctx, tx, entry); err != nil {
			return err
		}
		return m.events.Record(ctx, tx, bookID, eventlog.AggregateBook, eventlog.WaitlistLeft,
			eventlog.WaitlistEvent{UserID: userID, Position: entry.Position})
	}, m.retry...)
	return model.Infra("leave waiting list", err)
}

// NotifyNext pops the head of the queue and emails them. An empty queue
// returns nil. Delivery failure is reported in the result, never as an error.
func (m *Manager) NotifyNext(ctx context.Context, bookID uuid.UUID) (n *Notification, err error) {
	ctx, span := m.tracer.Start(ctx, "waitlist.notify_next",
		trace.WithAttributes(attribute.String("book.id", bookID.String())))
	defer func() { m.end(span, err) }()

	unlock := m.locks.Lock(bookID)
	defer unlock()

	var (
		book *model.Book
		head *model.WaitingListEntry
		user *model.User
	)
	err = store.RunInTx(ctx, m.store, func(ctx context.Context, tx store.Tx) error {
		head, user = nil, nil

		var err error
		book, err = tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		entries, err := tx.WaitingList(ctx, bookID)
		if err != nil {
			return fmt.Errorf("list waiting entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		head = entries[0]
		head.Notified = true
		user, err = tx.GetUser(ctx, head.UserID)
		if err != nil {
			return err
		}
		if err := RemoveEntry(ctx, tx, head); err != nil {
			return err
		}
		return m.events.Record(ctx, tx, bookID, eventlog.AggregateBook, eventlog.WaitlistNotified,
			eventlog.WaitlistEvent{UserID: head.UserID, Position: head.Position})
	}, m.retry...)
	if err != nil {
		return nil, model.Infra("notify next", err)
	}
	if head == nil {
		return nil, nil
	}

	n = &Notification{Entry: head, User: user}
	n.Err = m.send(ctx, user, book, head)
	n.Delivered = n.Err == nil

	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.Bool("delivered", n.Delivered)))
	span.SetAttributes(
		attribute.String("user.id", head.UserID.String()),
		attribute.Bool("notification.delivered", n.Delivered),
	)
	if n.Err != nil {
		m.logger.WarnContext(ctx, "waiting list notification not delivered",
			"book_id", bookID, "user_id", head.UserID, "error", n.Err)
	}
	return n, nil
}

func (m *Manager) send(ctx context.Context, user *model.User, book *model.Book, entry *model.WaitingListEntry) error {
	subject, body, err := notify.AvailabilityMessage(user, book, entry)
	if err != nil {
		return err
	}
	return m.notifier.Send(ctx, user.Email, subject, body)
}

// EstimateAvailability returns the end date of the position-th soonest-ending
// active borrow, or nil when fewer borrows are out.
func (m *Manager) EstimateAvailability(ctx context.Context, bookID uuid.UUID, position int) (*time.Time, error) {
	if position < 1 {
		return nil, model.Errorf(model.ErrInvalidInput, "position %d", position)
	}
	if _, err := m.store.GetBook(ctx, bookID); err != nil {
		return nil, model.Infra("estimate availability", err)
	}
	borrows, err := m.store.ActiveBorrowsByBook(ctx, bookID)
	if err != nil {
		return nil, model.Infra("estimate availability", err)
	}
	if len(borrows) < position {
		return nil, nil
	}
	eta := borrows[position-1].EndDate
	return &eta, nil
}

// Entries returns the book's queue in position order.
func (m *Manager) Entries(ctx context.Context, bookID uuid.UUID) ([]*model.WaitingListEntry, error) {
	if _, err := m.store.GetBook(ctx, bookID); err != nil {
		return nil, model.Infra("list waiting entries", err)
	}
	entries, err := m.store.WaitingList(ctx, bookID)
	if err != nil {
		return nil, model.Infra("list waiting entries", err)
	}
	return entries, nil
}

// Position returns the user's entry, or ErrNotFound if they are not queued.
func (m *Manager) Position(ctx context.Context, userID, bookID uuid.UUID) (*model.WaitingListEntry, error) {
	entry, err := m.store.GetWaitingEntry(ctx, userID, bookID)
	if err != nil {
		return nil, model.Infra("get waiting entry", err)
	}
	if entry == nil {
		return nil, model.Errorf(model.ErrNotFound, "user %s is not queued for book %s", userID, bookID)
	}
	return entry, nil
}

// RemoveEntry deletes the entry and decrements every later position. The
// caller must hold the book lock.
func RemoveEntry(ctx context.Context, tx store.Tx, entry *model.WaitingListEntry) error {
	if err := tx.DeleteWaitingEntry(ctx, entry.ID); err != nil {
		return err
	}
	return tx.ShiftWaitingPositions(ctx, entry.BookID, entry.Position)
}

func (m *Manager) start(ctx context.Context, name string, userID, bookID uuid.UUID) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
	))
}

func (m *Manager) end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if model.IsInfra(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
