// internal/eventlog/eventlog.go

// Package eventlog appends versioned activity events inside the caller's
// transaction, so a state change and its event commit or roll back together.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Aggregate types.
const (
	AggregateBorrow   = "borrow"
	AggregateBook     = "book"
	AggregateDiscount = "discount"
	AggregateUser     = "user"
)

// Event types.
const (
	BorrowCreated     = "BorrowCreated"
	BorrowReturned    = "BorrowReturned"
	BorrowExpired     = "BorrowExpired"
	WaitlistJoined    = "WaitlistJoined"
	WaitlistLeft      = "WaitlistLeft"
	WaitlistNotified  = "WaitlistNotified"
	DiscountCreated   = "DiscountCreated"
	DiscountUpdated   = "DiscountUpdated"
	PurchaseRecorded  = "PurchaseRecorded"
	BookAdded         = "BookAdded"
	BookCopiesUpdated = "BookCopiesUpdated"
	UserRegistered    = "UserRegistered"
)

var (
	ErrInvalidVersion = errors.New("invalid version number")
)

// Record is an event before it is given a version.
type Record struct {
	EventType string
	Data      any
}

// Log writes and reads the activity log.
type Log struct {
	tracer trace.Tracer
	now    func() time.Time
}

// New returns a Log stamping events with the wall clock.
func New() *Log {
	return &Log{
		tracer: otel.Tracer("bookstore/eventlog"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append writes records after expectedVersion. It fails with
// store.ErrConcurrencyConflict when another writer got there first.
func (l *Log) Append(ctx context.Context, tx store.Tx, aggregateID uuid.UUID, aggregateType string, expectedVersion int, records ...Record) error {
	ctx, span := l.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(records)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	currentVersion, err := tx.LatestEventVersion(ctx, aggregateID)
	if err != nil {
		return fmt.Errorf("query current version: %w", err)
	}
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return fmt.Errorf("aggregate %s at version %d, expected %d: %w", aggregateID, currentVersion, expectedVersion, store.ErrConcurrencyConflict)
	}

	for i, rec := range records {
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.EventType, err)
		}
		event := &model.Event{
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     rec.EventType,
			EventData:     data,
			Version:       expectedVersion + i + 1,
			CreatedAt:     l.now(),
		}
		if err := tx.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append event %d: %w", i, err)
		}
		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", event.ID),
			attribute.Int("event.version", event.Version),
			attribute.String("event.type", event.EventType),
		))
	}

	return nil
}

// Record appends one event at the aggregate's next version.
func (l *Log) Record(ctx context.Context, tx store.Tx, aggregateID uuid.UUID, aggregateType, eventType string, data any) error {
	version, err := tx.LatestEventVersion(ctx, aggregateID)
	if err != nil {
		return fmt.Errorf("query current version: %w", err)
	}
	return l.Append(ctx, tx, aggregateID, aggregateType, version, Record{EventType: eventType, Data: data})
}

// History returns every event of the aggregate in version order.
func (l *Log) History(ctx context.Context, q store.Querier, aggregateID uuid.UUID) ([]model.Event, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.history",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	events, err := q.Events(ctx, aggregateID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
