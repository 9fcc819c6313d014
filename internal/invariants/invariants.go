// internal/invariants/invariants.go

// Package invariants probes the store for steady-state violations: stock out
// of bounds, users over their limit, gaps in waiting lists and overlapping
// discounts. A healthy store produces an empty report.
package invariants

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Probe checks one property across the whole store.
type Probe struct {
	Name  string
	Check func(ctx context.Context, q store.Querier) ([]Violation, error)
}

// Violation is one entity breaking a probe's property.
type Violation struct {
	Probe   string `json:"probe"`
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// Report is the outcome of a full run.
type Report struct {
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	Probes     []string      `json:"probes"`
	Violations []Violation   `json:"violations"`
}

// Healthy reports whether no probe found a violation.
func (r *Report) Healthy() bool {
	return len(r.Violations) == 0
}

// Checker runs registered probes against a store.
type Checker struct {
	tracer trace.Tracer
	q      store.Querier
	probes []Probe
	mu     sync.Mutex
}

// NewChecker returns a checker with no probes registered.
func NewChecker(q store.Querier) *Checker {
	return &Checker{
		tracer: otel.Tracer("bookstore/invariants"),
		q:      q,
	}
}

// Register adds probes to the checker.
func (c *Checker) Register(probes ...Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probes...)
}

// Defaults registers every built-in probe.
func (c *Checker) Defaults(borrowLimit int) *Checker {
	c.Register(
		AvailabilityBounds(),
		BorrowLimit(borrowLimit),
		DensePositions(),
		DiscountOverlap(),
	)
	return c
}

// Run executes each probe in registration order. A probe that cannot read
// the store aborts the run.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	ctx, span := c.tracer.Start(ctx, "invariants.run")
	defer span.End()

	c.mu.Lock()
	probes := append([]Probe(nil), c.probes...)
	c.mu.Unlock()

	report := &Report{StartTime: time.Now(), Violations: []Violation{}}
	for _, p := range probes {
		span.AddEvent("probe", trace.WithAttributes(attribute.String("probe.name", p.Name)))
		violations, err := p.Check(ctx, c.q)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("probe %s: %w", p.Name, err)
		}
		report.Probes = append(report.Probes, p.Name)
		report.Violations = append(report.Violations, violations...)
	}
	report.Duration = time.Since(report.StartTime)

	span.SetAttributes(attribute.Int("violations", len(report.Violations)))
	return report, nil
}

// AvailabilityBounds checks 0 <= total - active borrows <= total for every book.
func AvailabilityBounds() Probe {
	const name = "availability-bounds"
	return Probe{
		Name: name,
		Check: func(ctx context.Context, q store.Querier) ([]Violation, error) {
			books, err := q.ListBooks(ctx)
			if err != nil {
				return nil, err
			}
			var out []Violation
			for _, b := range books {
				active, err := q.CountActiveBorrows(ctx, b.ID)
				if err != nil {
					return nil, err
				}
				if available := b.TotalCopies - active; available < 0 || available > b.TotalCopies {
					out = append(out, Violation{
						Probe:   name,
						Subject: b.ID.String(),
						Detail:  fmt.Sprintf("%d copies, %d active borrows", b.TotalCopies, active),
					})
				}
			}
			return out, nil
		},
	}
}

// BorrowLimit checks that no user holds more than limit distinct books.
func BorrowLimit(limit int) Probe {
	const name = "borrow-limit"
	return Probe{
		Name: name,
		Check: func(ctx context.Context, q store.Querier) ([]Violation, error) {
			users, err := q.ListUsers(ctx)
			if err != nil {
				return nil, err
			}
			var out []Violation
			for _, u := range users {
				n, err := q.CountDistinctActiveBooks(ctx, u.ID)
				if err != nil {
					return nil, err
				}
				if n > limit {
					out = append(out, Violation{
						Probe:   name,
						Subject: u.ID.String(),
						Detail:  fmt.Sprintf("%d distinct books, limit %d", n, limit),
					})
				}
			}
			return out, nil
		},
	}
}

// DensePositions checks every waiting list holds exactly positions 1..N.
func DensePositions() Probe {
	const name = "dense-positions"
	return Probe{
		Name: name,
		Check: func(ctx context.Context, q store.Querier) ([]Violation, error) {
			books, err := q.ListBooks(ctx)
			if err != nil {
				return nil, err
			}
			var out []Violation
			for _, b := range books {
				entries, err := q.WaitingList(ctx, b.ID)
				if err != nil {
					return nil, err
				}
				if got := positions(entries); !dense(got) {
					out = append(out, Violation{
						Probe:   name,
						Subject: b.ID.String(),
						Detail:  fmt.Sprintf("positions %v", got),
					})
				}
			}
			return out, nil
		},
	}
}

// DiscountOverlap checks no two active discounts of a book share an instant.
func DiscountOverlap() Probe {
	const name = "discount-overlap"
	return Probe{
		Name: name,
		Check: func(ctx context.Context, q store.Querier) ([]Violation, error) {
			books, err := q.ListBooks(ctx)
			if err != nil {
				return nil, err
			}
			var out []Violation
			for _, b := range books {
				discounts, err := q.DiscountsByBook(ctx, b.ID)
				if err != nil {
					return nil, err
				}
				active := make([]*model.Discount, 0, len(discounts))
				for _, d := range discounts {
					if d.Active {
						active = append(active, d)
					}
				}
				for i := 0; i < len(active); i++ {
					for j := i + 1; j < len(active); j++ {
						if active[i].Overlaps(active[j].StartDate, active[j].EndDate) {
							out = append(out, Violation{
								Probe:   name,
								Subject: b.ID.String(),
								Detail:  fmt.Sprintf("discounts %s and %s overlap", active[i].ID, active[j].ID),
							})
						}
					}
				}
			}
			return out, nil
		},
	}
}

func positions(entries []*model.WaitingListEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Position
	}
	sort.Ints(out)
	return out
}

// dense expects sorted input.
func dense(sorted []int) bool {
	for i, p := range sorted {
		if p != i+1 {
			return false
		}
	}
	return true
}
