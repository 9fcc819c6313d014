// internal/cart/implementation.go
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/circulation"
	"bookstore/internal/eventlog"
	"bookstore/internal/model"
	"bookstore/internal/pricing"
	"bookstore/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the service.
type Option func(*service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
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
	store       store.Store
	pricing     *pricing.Engine
	circulation circulation.Service
	events      *eventlog.Log
	logger      *slog.Logger
	now         func() time.Time
	retry       []store.RetryOption
	tracer      trace.Tracer
}

// NewService creates a new cart service instance.
func NewService(s store.Store, engine *pricing.Engine, circ circulation.Service, events *eventlog.Log, opts ...Option) Service {
	svc := &service{
		store:       s,
		pricing:     engine,
		circulation: circ,
		events:      events,
		logger:      slog.Default(),
		now:         time.Now,
		tracer:      otel.Tracer("bookstore/cart"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AddToCart snapshots the current price of the intent. It reserves nothing.
func (s *service) AddToCart(ctx context.Context, userID, bookID uuid.UUID, intent model.Intent) (item *model.CartItem, err error) {
	ctx, span := s.tracer.Start(ctx, "cart.add", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
		attribute.String("intent", string(intent)),
	))
	defer func() { endSpan(span, err) }()

	if !intent.Valid() {
		return nil, model.Errorf(model.ErrInvalidInput, "intent %q", intent)
	}

	err = store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}

		cart, err := tx.EnsureCart(ctx, userID)
		if err != nil {
			return err
		}
		items, err := tx.CartItems(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		for _, existing := range items {
			if existing.BookID == bookID {
				return model.Errorf(model.ErrDuplicateCartItem, "%q", book.Title)
			}
		}

		if err := checkIntent(book, intent); err != nil {
			return err
		}

		quote, err := s.pricing.For(tx).QuoteBook(ctx, book, intent)
		if err != nil {
			return err
		}
		if !quote.Price.Valid {
			return model.Errorf(model.ErrInvalidInput, "no price for %s of %q", intent, book.Title)
		}

		item = &model.CartItem{
			ID:         uuid.New(),
			CartID:     cart.ID,
			BookID:     bookID,
			Intent:     intent,
			Price:      quote.Price.Decimal,
			DiscountID: quote.DiscountID,
			AddedAt:    s.now().UTC(),
		}
		return tx.InsertCartItem(ctx, item)
	}, s.retry...)
	if err != nil {
		return nil, model.Infra("add to cart", err)
	}
	return item, nil
}

// checkIntent rejects intents the book has no price for.
func checkIntent(book *model.Book, intent model.Intent) error {
	switch intent {
	case model.IntentBorrow:
		if !book.Borrowable() {
			return model.Errorf(model.ErrNotBorrowable, "%q", book.Title)
		}
	case model.IntentPurchase:
		if !book.PurchasePrice.Valid {
			return model.Errorf(model.ErrNotPurchasable, "%q", book.Title)
		}
	}
	return nil
}

// RemoveFromCart drops one item from the user's cart.
func (s *service) RemoveFromCart(ctx context.Context, userID, itemID uuid.UUID) error {
	err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		cart, err := tx.GetCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if cart == nil {
			return model.Errorf(model.ErrNotFound, "cart item %s", itemID)
		}
		items, err := tx.CartItems(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		for _, item := range items {
			if item.ID == itemID {
				return tx.DeleteCartItem(ctx, itemID)
			}
		}
		return model.Errorf(model.ErrNotFound, "cart item %s", itemID)
	}, s.retry...)
	return model.Infra("remove from cart", err)
}

// Cart returns the user's cart. A user who never added anything gets an empty view.
func (s *service) Cart(ctx context.Context, userID uuid.UUID) (*View, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, model.Infra("get cart", err)
	}
	cart, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return nil, model.Infra("get cart", err)
	}
	view := &View{Cart: cart, Items: []*model.CartItem{}, Subtotal: decimal.Zero}
	if cart == nil {
		return view, nil
	}

	items, err := s.store.CartItems(ctx, cart.ID)
	if err != nil {
		return nil, model.Infra("list cart items", err)
	}
	view.Items = items
	for _, item := range items {
		view.Subtotal = view.Subtotal.Add(item.Price)
	}
	return view, nil
}

// Checkout prices every item again and commits each in its own transaction.
// Business failures are collected per item; an infrastructure failure stops
// the checkout and returns what was committed so far with the error.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID) (result *CheckoutResult, err error) {
	ctx, span := s.tracer.Start(ctx, "cart.checkout", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer func() { endSpan(span, err) }()

	view, err := s.Cart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, model.Errorf(model.ErrInvalidInput, "cart is empty")
	}

	result = &CheckoutResult{Lines: []Line{}, Failures: []Failure{}, Total: decimal.Zero}
	for _, item := range view.Items {
		line, err := s.checkoutItem(ctx, userID, item)
		if err != nil {
			if !model.IsBusiness(err) {
				return result, model.Infra("checkout", err)
			}
			result.Failures = append(result.Failures, Failure{
				ItemID:  item.ID,
				BookID:  item.BookID,
				Intent:  item.Intent,
				Code:    model.Code(err),
				Message: err.Error(),
			})
			continue
		}
		result.Lines = append(result.Lines, *line)
		result.Total = result.Total.Add(line.Price)
	}

	span.SetAttributes(
		attribute.Int("checkout.lines", len(result.Lines)),
		attribute.Int("checkout.failures", len(result.Failures)),
	)
	if !result.Complete() {
		s.logger.InfoContext(ctx, "checkout partially refused",
			"user_id", userID, "committed", len(result.Lines), "refused", len(result.Failures))
	}
	return result, nil
}

func (s *service) checkoutItem(ctx context.Context, userID uuid.UUID, item *model.CartItem) (*Line, error) {
	var line *Line
	err := store.RunInTx(ctx, s.store, func(ctx context.Context, tx store.Tx) error {
		line = &Line{
			ItemID:        item.ID,
			BookID:        item.BookID,
			Intent:        item.Intent,
			SnapshotPrice: item.Price,
		}

		switch item.Intent {
		case model.IntentBorrow:
			borrow, err := s.circulation.BorrowTx(ctx, tx, userID, item.BookID)
			if err != nil {
				return err
			}
			line.BorrowID = uuid.NullUUID{UUID: borrow.ID, Valid: true}
			if err := s.price(ctx, tx, line); err != nil {
				return err
			}

		case model.IntentPurchase:
			if _, err := tx.LockUser(ctx, userID); err != nil {
				return err
			}
			if err := s.price(ctx, tx, line); err != nil {
				return err
			}
			purchase := &model.Purchase{
				ID:          uuid.New(),
				UserID:      userID,
				BookID:      item.BookID,
				Price:       line.Price,
				DiscountID:  line.DiscountID,
				PurchasedAt: s.now().UTC(),
			}
			if err := tx.InsertPurchase(ctx, purchase); err != nil {
				return err
			}
			err := s.events.Record(ctx, tx, userID, eventlog.AggregateUser, eventlog.PurchaseRecorded, eventlog.PurchaseEvent{
				PurchaseID: purchase.ID,
				BookID:     purchase.BookID,
				Price:      purchase.Price,
			})
			if err != nil {
				return err
			}
			line.PurchaseID = uuid.NullUUID{UUID: purchase.ID, Valid: true}

		default:
			return model.Errorf(model.ErrInvalidInput, "intent %q", item.Intent)
		}

		return tx.DeleteCartItem(ctx, item.ID)
	}, s.retry...)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// price fills in the authoritative price for the line. The snapshot is ignored.
func (s *service) price(ctx context.Context, tx store.Tx, line *Line) error {
	book, err := tx.GetBook(ctx, line.BookID)
	if err != nil {
		return err
	}
	quote, err := s.pricing.For(tx).QuoteBook(ctx, book, line.Intent)
	if err != nil {
		return err
	}
	if !quote.Price.Valid {
		if err := checkIntent(book, line.Intent); err != nil {
			return err
		}
		return model.Errorf(model.ErrInvalidInput, "no price for %s of %q", line.Intent, book.Title)
	}
	line.Price = quote.Price.Decimal
	line.DiscountID = quote.DiscountID
	line.PriceChanged = !line.Price.Equal(line.SnapshotPrice)
	return nil
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
