// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/eventlog"
	"bookstore/internal/inventory"
	"bookstore/internal/model"
	"bookstore/internal/pricing"
	"bookstore/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var hundred = decimal.NewFromInt(100)

// Option configures the service.
type Option func(*service)

// WithMaxDiscountWindow caps how long a discount may run.
func WithMaxDiscountWindow(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.maxWindow = d
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

// WithRetry sets the retry options used for every transaction.
func WithRetry(opts ...store.RetryOption) Option {
	return func(s *service) {
		s.retry = opts
	}
}

// service implements the Service interface.
type service struct {
	store     store.Store
	pricing   *pricing.Engine
	queue     Queue
	events    *eventlog.Log
	validate  *validator.Validate
	maxWindow time.Duration
	now       func() time.Time
	logger    *slog.Logger
	retry     []store.RetryOption
	tracer    trace.Tracer
}

// NewService creates a new catalog service instance. queue is told about
// copies added to a title with people waiting for it.
func NewService(s store.Store, engine *pricing.Engine, queue Queue, events *eventlog.Log, opts ...Option) Service {
	svc := &service{
		store:     s,
		pricing:   engine,
		queue:     queue,
		events:    events,
		validate:  validator.New(),
		maxWindow: model.DefaultMaxDiscountWindow,
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer("bookstore/catalog"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AddBook adds a title to the catalog.
func (s *service) AddBook(ctx context.Context, in NewBook) (*model.Book, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	for _, p := range []decimal.NullDecimal{in.PurchasePrice, in.BorrowPrice} {
		if p.Valid && p.Decimal.IsNegative() {
			return nil, model.Errorf(model.ErrInvalidInput, "negative price %s", p.Decimal)
		}
	}

	now := s.now().UTC()
	book := &model.Book{
		ID:            uuid.New(),
		ISBN:          in.ISBN,
		Title:         in.Title,
		Author:        in.Author,
		TotalCopies:   in.TotalCopies,
		PurchasePrice: in.PurchasePrice,
		BorrowPrice:   in.BorrowPrice,
		BuyOnly:       in.BuyOnly,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertBook(ctx, book); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, book.ID, eventlog.AggregateBook, 0, eventlog.Record{
			EventType: eventlog.BookAdded,
			Data:      eventlog.BookEvent{Title: book.Title, TotalCopies: book.TotalCopies},
		})
	}, s.retry...)
	if err != nil {
		return nil, model.Infra("add book", err)
	}
	return book, nil
}

// GetBook returns the title with its availability and current prices.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*BookView, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, model.Infra("get book", err)
	}
	return s.view(ctx, book)
}

// ListBooks returns every title ordered by title.
func (s *service) ListBooks(ctx context.Context) ([]*BookView, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, model.Infra("list books", err)
	}
	views := make([]*BookView, 0, len(books))
	for _, b := range books {
		v, err := s.view(ctx, b)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *service) view(ctx context.Context, book *model.Book) (*BookView, error) {
	availability, err := inventory.NewLedger(s.store).Snapshot(ctx, book.ID)
	if err != nil {
		return nil, model.Infra("book availability", err)
	}
	v := &BookView{Book: book, Availability: availability}

	borrow, err := s.pricing.QuoteBook(ctx, book, model.IntentBorrow)
	if err != nil {
		return nil, model.Infra("price book", err)
	}
	purchase, err := s.pricing.QuoteBook(ctx, book, model.IntentPurchase)
	if err != nil {
		return nil, model.Infra("price book", err)
	}
	v.EffectiveBorrowPrice = borrow.Price
	v.EffectivePurchasePrice = purchase.Price
	v.DiscountID = purchase.DiscountID
	if !v.DiscountID.Valid {
		v.DiscountID = borrow.DiscountID
	}
	return v, nil
}

// UpdateCopies sets the number of copies the store owns. It refuses to go
// below the copies currently lent out. Added copies advance the waiting list.
func (s *service) UpdateCopies(ctx context.Context, id uuid.UUID, total int) (book *model.Book, err error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_copies", trace.WithAttributes(
		attribute.String("book.id", id.String()),
		attribute.Int("total", total),
	))
	defer span.End()

	if total < 0 {
		return nil, model.Errorf(model.ErrInvalidInput, "total copies %d", total)
	}

	var freed int
	err = store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		var err error
		book, err = tx.LockBook(ctx, id)
		if err != nil {
			return err
		}
		before, err := inventory.NewLedger(tx).Snapshot(ctx, id)
		if err != nil {
			return err
		}
		if total < before.Active {
			return model.Errorf(model.ErrInvalidInput, "%d copies are lent out, cannot reduce to %d", before.Active, total)
		}
		if err := tx.UpdateBookCopies(ctx, id, total); err != nil {
			return err
		}
		book.TotalCopies = total
		freed = total - before.Active - before.Available

		return s.events.Record(ctx, tx, id, eventlog.AggregateBook, eventlog.BookCopiesUpdated,
			eventlog.BookEvent{TotalCopies: total})
	}, s.retry...)
	if err != nil {
		span.RecordError(err)
		return nil, model.Infra("update copies", err)
	}

	for i := 0; i < freed; i++ {
		n, err := s.queue.NotifyNext(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "copies added but waiting list not advanced", "book_id", id, "error", err)
			break
		}
		if n == nil {
			break
		}
	}
	return book, nil
}

// CreateDiscount adds a discount after checking its window against the
// book's other active discounts, under the book lock.
func (s *service) CreateDiscount(ctx context.Context, bookID uuid.UUID, in DiscountInput) (*model.Discount, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	d := &model.Discount{
		ID:        uuid.New(),
		BookID:    bookID,
		Percent:   in.Percent,
		StartDate: in.StartDate.UTC(),
		EndDate:   in.EndDate.UTC(),
		Active:    in.Active,
	}

	err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockBook(ctx, bookID); err != nil {
			return err
		}
		if err := s.checkDiscount(ctx, tx, d); err != nil {
			return err
		}
		if err := tx.InsertDiscount(ctx, d); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, d.ID, eventlog.AggregateDiscount, 0, eventlog.Record{
			EventType: eventlog.DiscountCreated,
			Data:      discountEvent(d),
		})
	}, s.retry...)
	if err != nil {
		return nil, model.Infra("create discount", err)
	}
	return d, nil
}

// UpdateDiscount replaces a discount's terms with the same checks as create.
func (s *service) UpdateDiscount(ctx context.Context, id uuid.UUID, in DiscountInput) (*model.Discount, error) {
	return s.editDiscount(ctx, id, func(ctx context.Context, tx store.Tx, d *model.Discount) error {
		if err := s.check(in); err != nil {
			return err
		}
		d.Percent = in.Percent
		d.StartDate = in.StartDate.UTC()
		d.EndDate = in.EndDate.UTC()
		d.Active = in.Active
		return s.checkDiscount(ctx, tx, d)
	})
}

// DeactivateDiscount switches a discount off. Its terms are kept for history
// and are not checked against the current limits.
func (s *service) DeactivateDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	return s.editDiscount(ctx, id, func(_ context.Context, _ store.Tx, d *model.Discount) error {
		d.Active = false
		return nil
	})
}

func (s *service) editDiscount(ctx context.Context, id uuid.UUID, edit func(context.Context, store.Tx, *model.Discount) error) (*model.Discount, error) {
	var d *model.Discount
	err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetDiscount(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.LockBook(ctx, current.BookID); err != nil {
			return err
		}
		// Read again under the book lock.
		if d, err = tx.GetDiscount(ctx, id); err != nil {
			return err
		}
		if err := edit(ctx, tx, d); err != nil {
			return err
		}
		if err := tx.UpdateDiscount(ctx, d); err != nil {
			return err
		}
		return s.events.Record(ctx, tx, d.ID, eventlog.AggregateDiscount, eventlog.DiscountUpdated, discountEvent(d))
	}, s.retry...)
	if err != nil {
		return nil, model.Infra("update discount", err)
	}
	return d, nil
}

// Discounts lists the book's discounts by start date.
func (s *service) Discounts(ctx context.Context, bookID uuid.UUID) ([]*model.Discount, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, model.Infra("list discounts", err)
	}
	discounts, err := s.store.DiscountsByBook(ctx, bookID)
	if err != nil {
		return nil, model.Infra("list discounts", err)
	}
	return discounts, nil
}

// checkDiscount enforces the percent range, the window length and, for active
// discounts, that no other active discount of the book overlaps the window.
func (s *service) checkDiscount(ctx context.Context, tx store.Tx, d *model.Discount) error {
	if d.Percent.IsNegative() || d.Percent.GreaterThan(hundred) {
		return model.Errorf(model.ErrInvalidInput, "percent %s outside 0..100", d.Percent)
	}
	if !d.StartDate.Before(d.EndDate) {
		return model.Errorf(model.ErrInvalidInput, "start %s is not before end %s",
			d.StartDate.Format(time.RFC3339), d.EndDate.Format(time.RFC3339))
	}
	if window := d.EndDate.Sub(d.StartDate); window > s.maxWindow {
		return model.Errorf(model.ErrDiscountWindowTooLong, "%s exceeds %s", window, s.maxWindow)
	}
	if !d.Active {
		return nil
	}

	others, err := tx.DiscountsByBook(ctx, d.BookID)
	if err != nil {
		return fmt.Errorf("list discounts: %w", err)
	}
	for _, other := range others {
		if other.ID == d.ID || !other.Active {
			continue
		}
		if other.Overlaps(d.StartDate, d.EndDate) {
			return model.Errorf(model.ErrDiscountOverlap, "discount %s runs %s to %s", other.ID,
				other.StartDate.Format(time.RFC3339), other.EndDate.Format(time.RFC3339))
		}
	}
	return nil
}

// check runs struct tag validation and reports the first failing field.
func (s *service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return model.Errorf(model.ErrInvalidInput, "field %s fails %q", verrs[0].Field(), verrs[0].Tag())
	}
	return model.Errorf(model.ErrInvalidInput, "%v", err)
}

func discountEvent(d *model.Discount) eventlog.DiscountEvent {
	return eventlog.DiscountEvent{
		BookID:    d.BookID,
		Percent:   d.Percent,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		Active:    d.Active,
	}
}
