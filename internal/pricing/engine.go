// internal/pricing/engine.go

// Package pricing computes what a book costs right now for a given intent.
package pricing

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is a priced intent. Price is null when the book has no base price for it.
type Quote struct {
	Price      decimal.NullDecimal `json:"price"`
	DiscountID uuid.NullUUID       `json:"discount_id"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine prices books. It holds no state beyond its clock.
type Engine struct {
	q   store.Querier
	now func() time.Time
}

// NewEngine returns an engine reading through q.
func NewEngine(q store.Querier, opts ...Option) *Engine {
	e := &Engine{
		q:   q,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// For returns a copy of the engine reading through q, typically an open transaction.
func (e *Engine) For(q store.Querier) *Engine {
	c := *e
	c.q = q
	return &c
}

// Now returns the engine's clock reading.
func (e *Engine) Now() time.Time {
	return e.now()
}

// EffectivePrice is the base price for intent less any discount active now.
func (e *Engine) EffectivePrice(ctx context.Context, bookID uuid.UUID, intent model.Intent) (decimal.NullDecimal, error) {
	q, err := e.Quote(ctx, bookID, intent)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return q.Price, nil
}

// Quote prices the intent and names the discount applied, if any.
func (e *Engine) Quote(ctx context.Context, bookID uuid.UUID, intent model.Intent) (Quote, error) {
	book, err := e.q.GetBook(ctx, bookID)
	if err != nil {
		return Quote{}, fmt.Errorf("get book: %w", err)
	}
	return e.QuoteBook(ctx, book, intent)
}

// QuoteBook prices an already loaded book.
func (e *Engine) QuoteBook(ctx context.Context, book *model.Book, intent model.Intent) (Quote, error) {
	if !intent.Valid() {
		return Quote{}, model.Errorf(model.ErrInvalidInput, "intent %q", intent)
	}

	base := book.BasePrice(intent)
	if !base.Valid {
		return Quote{}, nil
	}

	discount, err := e.q.ActiveDiscountAt(ctx, book.ID, e.now())
	if err != nil {
		return Quote{}, fmt.Errorf("get active discount: %w", err)
	}
	if discount == nil {
		return Quote{Price: base}, nil
	}

	return Quote{
		Price:      decimal.NewNullDecimal(Apply(base.Decimal, discount.Percent)),
		DiscountID: uuid.NullUUID{UUID: discount.ID, Valid: true},
	}, nil
}

// Apply takes percent off base and rounds to cents.
func Apply(base, percent decimal.Decimal) decimal.Decimal {
	factor := hundred.Sub(percent).Div(hundred)
	return base.Mul(factor).Round(2)
}
