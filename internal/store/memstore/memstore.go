// internal/store/memstore/memstore.go

// Package memstore is an in-process store.Store. Transactions are fully
// serialized behind one lock and work on a copy of the data that replaces the
// original only on success, so a failed transaction leaves no trace.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/google/uuid"
)

type data struct {
	users     map[uuid.UUID]model.User
	books     map[uuid.UUID]model.Book
	borrows   map[uuid.UUID]model.Borrow
	discounts map[uuid.UUID]model.Discount
	waiting   map[uuid.UUID]model.WaitingListEntry
	carts     map[uuid.UUID]model.Cart // keyed by user id
	cartItems map[uuid.UUID]model.CartItem
	purchases []model.Purchase
	events    []model.Event
	nextEvent int64
}

func newData() *data {
	return &data{
		users:     make(map[uuid.UUID]model.User),
		books:     make(map[uuid.UUID]model.Book),
		borrows:   make(map[uuid.UUID]model.Borrow),
		discounts: make(map[uuid.UUID]model.Discount),
		waiting:   make(map[uuid.UUID]model.WaitingListEntry),
		carts:     make(map[uuid.UUID]model.Cart),
		cartItems: make(map[uuid.UUID]model.CartItem),
	}
}

func (d *data) clone() *data {
	c := &data{
		users:     make(map[uuid.UUID]model.User, len(d.users)),
		books:     make(map[uuid.UUID]model.Book, len(d.books)),
		borrows:   make(map[uuid.UUID]model.Borrow, len(d.borrows)),
		discounts: make(map[uuid.UUID]model.Discount, len(d.discounts)),
		waiting:   make(map[uuid.UUID]model.WaitingListEntry, len(d.waiting)),
		carts:     make(map[uuid.UUID]model.Cart, len(d.carts)),
		cartItems: make(map[uuid.UUID]model.CartItem, len(d.cartItems)),
		purchases: append([]model.Purchase(nil), d.purchases...),
		events:    append([]model.Event(nil), d.events...),
		nextEvent: d.nextEvent,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.books {
		c.books[k] = v
	}
	for k, v := range d.borrows {
		c.borrows[k] = v
	}
	for k, v := range d.discounts {
		c.discounts[k] = v
	}
	for k, v := range d.waiting {
		c.waiting[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = v
	}
	for k, v := range d.cartItems {
		c.cartItems[k] = v
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	mu   sync.RWMutex
	data *data
	// reads holds the store-level view; it locks mu for every call.
	reads *reader
}

// New returns an empty store.
func New() *Store {
	s := &Store{data: newData()}
	s.reads = &reader{view: func() *data { return s.data }}
	return s
}

// InTx runs fn against a private copy and publishes it when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn store.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.data.clone()
	t := &tx{reader: reader{view: func() *data { return working }}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.data = working
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.ListUsers(ctx)
}

func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.GetBook(ctx, id)
}

func (s *Store) ListBooks(ctx context.Context) ([]*model.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.ListBooks(ctx)
}

func (s *Store) CountActiveBorrows(ctx context.Context, bookID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.CountActiveBorrows(ctx, bookID)
}

func (s *Store) CountDistinctActiveBooks(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.CountDistinctActiveBooks(ctx, userID)
}

func (s *Store) GetActiveBorrow(ctx context.Context, userID, bookID uuid.UUID) (*model.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.GetActiveBorrow(ctx, userID, bookID)
}

func (s *Store) ActiveBorrowsByBook(ctx context.Context, bookID uuid.UUID) ([]*model.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.ActiveBorrowsByBook(ctx, bookID)
}

func (s *Store) BorrowsByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*model.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.BorrowsByUser(ctx, userID, activeOnly)
}

func (s *Store) OverdueBorrows(ctx context.Context, at time.Time) ([]*model.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.OverdueBorrows(ctx, at)
}

func (s *Store) GetDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.GetDiscount(ctx, id)
}

func (s *Store) DiscountsByBook(ctx context.Context, bookID uuid.UUID) ([]*model.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.DiscountsByBook(ctx, bookID)
}

func (s *Store) ActiveDiscountAt(ctx context.Context, bookID uuid.UUID, at time.Time) (*model.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.ActiveDiscountAt(ctx, bookID, at)
}

func (s *Store) WaitingList(ctx context.Context, bookID uuid.UUID) ([]*model.WaitingListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.WaitingList(ctx, bookID)
}

func (s *Store) GetWaitingEntry(ctx context.Context, userID, bookID uuid.UUID) (*model.WaitingListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.GetWaitingEntry(ctx, userID, bookID)
}

func (s *Store) MaxWaitingPosition(ctx context.Context, bookID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.MaxWaitingPosition(ctx, bookID)
}

func (s *Store) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.GetCart(ctx, userID)
}

func (s *Store) CartItems(ctx context.Context, cartID uuid.UUID) ([]*model.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.CartItems(ctx, cartID)
}

func (s *Store) PurchasesByUser(ctx context.Context, userID uuid.UUID) ([]*model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.PurchasesByUser(ctx, userID)
}

func (s *Store) Events(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.Events(ctx, aggregateID, fromVersion, toVersion)
}

func (s *Store) LatestEventVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads.LatestEventVersion(ctx, aggregateID)
}

// reader implements store.Querier over whichever data view it is given.
// Callers must hold the store lock.
type reader struct {
	view func() *data
}

func (r *reader) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.view().users[id]
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "user %s", id)
	}
	return &u, nil
}

func (r *reader) ListUsers(_ context.Context) ([]*model.User, error) {
	out := make([]*model.User, 0, len(r.view().users))
	for _, u := range r.view().users {
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *reader) GetBook(_ context.Context, id uuid.UUID) (*model.Book, error) {
	b, ok := r.view().books[id]
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "book %s", id)
	}
	return &b, nil
}

func (r *reader) ListBooks(_ context.Context) ([]*model.Book, error) {
	out := make([]*model.Book, 0, len(r.view().books))
	for _, b := range r.view().books {
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r *reader) CountActiveBorrows(_ context.Context, bookID uuid.UUID) (int, error) {
	n := 0
	for _, b := range r.view().borrows {
		if b.BookID == bookID && !b.Returned {
			n++
		}
	}
	return n, nil
}

func (r *reader) CountDistinctActiveBooks(_ context.Context, userID uuid.UUID) (int, error) {
	seen := make(map[uuid.UUID]struct{})
	for _, b := range r.view().borrows {
		if b.UserID == userID && !b.Returned {
			seen[b.BookID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (r *reader) GetActiveBorrow(_ context.Context, userID, bookID uuid.UUID) (*model.Borrow, error) {
	for _, b := range r.view().borrows {
		if b.UserID == userID && b.BookID == bookID && !b.Returned {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

func (r *reader) ActiveBorrowsByBook(_ context.Context, bookID uuid.UUID) ([]*model.Borrow, error) {
	var out []*model.Borrow
	for _, b := range r.view().borrows {
		if b.BookID == bookID && !b.Returned {
			b := b
			out = append(out, &b)
		}
	}
	// Same order as the SQL store: end date, then id bytes.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.Before(out[j].EndDate)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r *reader) BorrowsByUser(_ context.Context, userID uuid.UUID, activeOnly bool) ([]*model.Borrow, error) {
	var out []*model.Borrow
	for _, b := range r.view().borrows {
		if b.UserID != userID || (activeOnly && b.Returned) {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *reader) OverdueBorrows(_ context.Context, at time.Time) ([]*model.Borrow, error) {
	var out []*model.Borrow
	for _, b := range r.view().borrows {
		if !b.Returned && !b.EndDate.After(at) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (r *reader) GetDiscount(_ context.Context, id uuid.UUID) (*model.Discount, error) {
	d, ok := r.view().discounts[id]
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "discount %s", id)
	}
	return &d, nil
}

func (r *reader) DiscountsByBook(_ context.Context, bookID uuid.UUID) ([]*model.Discount, error) {
	var out []*model.Discount
	for _, d := range r.view().discounts {
		if d.BookID == bookID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *reader) ActiveDiscountAt(ctx context.Context, bookID uuid.UUID, at time.Time) (*model.Discount, error) {
	discounts, _ := r.DiscountsByBook(ctx, bookID)
	for _, d := range discounts {
		if d.AppliesAt(at) {
			return d, nil
		}
	}
	return nil, nil
}

func (r *reader) WaitingList(_ context.Context, bookID uuid.UUID) ([]*model.WaitingListEntry, error) {
	var out []*model.WaitingListEntry
	for _, e := range r.view().waiting {
		if e.BookID == bookID {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *reader) GetWaitingEntry(_ context.Context, userID, bookID uuid.UUID) (*model.WaitingListEntry, error) {
	for _, e := range r.view().waiting {
		if e.UserID == userID && e.BookID == bookID {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (r *reader) MaxWaitingPosition(_ context.Context, bookID uuid.UUID) (int, error) {
	highest := 0
	for _, e := range r.view().waiting {
		if e.BookID == bookID && e.Position > highest {
			highest = e.Position
		}
	}
	return highest, nil
}

func (r *reader) GetCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	c, ok := r.view().carts[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *reader) CartItems(_ context.Context, cartID uuid.UUID) ([]*model.CartItem, error) {
	var out []*model.CartItem
	for _, item := range r.view().cartItems {
		if item.CartID == cartID {
			item := item
			out = append(out, &item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (r *reader) PurchasesByUser(_ context.Context, userID uuid.UUID) ([]*model.Purchase, error) {
	var out []*model.Purchase
	for _, p := range r.view().purchases {
		if p.UserID == userID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *reader) Events(_ context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]model.Event, error) {
	var out []model.Event
	for _, e := range r.view().events {
		if e.AggregateID != aggregateID || e.Version < fromVersion {
			continue
		}
		if toVersion > 0 && e.Version > toVersion {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *reader) LatestEventVersion(_ context.Context, aggregateID uuid.UUID) (int, error) {
	version := 0
	for _, e := range r.view().events {
		if e.AggregateID == aggregateID && e.Version > version {
			version = e.Version
		}
	}
	return version, nil
}

// tx implements store.Tx over the working copy of an InTx call.
type tx struct {
	reader
}

func (t *tx) LockUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return t.GetUser(ctx, id)
}

func (t *tx) LockBook(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	return t.GetBook(ctx, id)
}

func (t *tx) InsertUser(_ context.Context, u *model.User) error {
	d := t.view()
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return model.Errorf(model.ErrInvalidInput, "email %q already registered", u.Email)
		}
	}
	d.users[u.ID] = *u
	return nil
}

func (t *tx) InsertBook(_ context.Context, b *model.Book) error {
	t.view().books[b.ID] = *b
	return nil
}

func (t *tx) UpdateBookCopies(_ context.Context, id uuid.UUID, total int) error {
	d := t.view()
	b, ok := d.books[id]
	if !ok {
		return model.Errorf(model.ErrNotFound, "book %s", id)
	}
	b.TotalCopies = total
	d.books[id] = b
	return nil
}

func (t *tx) InsertBorrow(_ context.Context, b *model.Borrow) error {
	d := t.view()
	for _, existing := range d.borrows {
		if existing.UserID == b.UserID && existing.BookID == b.BookID && !existing.Returned {
			return model.Errorf(model.ErrDuplicateBorrow, "book %s", b.BookID)
		}
	}
	d.borrows[b.ID] = *b
	return nil
}

func (t *tx) MarkBorrowReturned(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	d := t.view()
	b, ok := d.borrows[id]
	if !ok || b.Returned {
		return false, nil
	}
	b.Returned = true
	b.ReturnedAt = &at
	d.borrows[id] = b
	return true, nil
}

func (t *tx) InsertDiscount(_ context.Context, disc *model.Discount) error {
	t.view().discounts[disc.ID] = *disc
	return nil
}

func (t *tx) UpdateDiscount(_ context.Context, disc *model.Discount) error {
	d := t.view()
	if _, ok := d.discounts[disc.ID]; !ok {
		return model.Errorf(model.ErrNotFound, "discount %s", disc.ID)
	}
	d.discounts[disc.ID] = *disc
	return nil
}

func (t *tx) InsertWaitingEntry(_ context.Context, e *model.WaitingListEntry) error {
	d := t.view()
	for _, existing := range d.waiting {
		if existing.BookID != e.BookID {
			continue
		}
		if existing.UserID == e.UserID {
			return model.Errorf(model.ErrAlreadyQueued, "book %s", e.BookID)
		}
		if existing.Position == e.Position {
			return fmt.Errorf("waiting list position %d taken: %w", e.Position, store.ErrConcurrencyConflict)
		}
	}
	d.waiting[e.ID] = *e
	return nil
}

func (t *tx) DeleteWaitingEntry(_ context.Context, id uuid.UUID) error {
	delete(t.view().waiting, id)
	return nil
}

func (t *tx) ShiftWaitingPositions(_ context.Context, bookID uuid.UUID, after int) error {
	d := t.view()
	for id, e := range d.waiting {
		if e.BookID == bookID && e.Position > after {
			e.Position--
			d.waiting[id] = e
		}
	}
	return nil
}

func (t *tx) EnsureCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	d := t.view()
	if c, ok := d.carts[userID]; ok {
		return &c, nil
	}
	c := model.Cart{ID: uuid.New(), UserID: userID, CreatedAt: time.Now().UTC()}
	d.carts[userID] = c
	return &c, nil
}

func (t *tx) InsertCartItem(_ context.Context, item *model.CartItem) error {
	d := t.view()
	for _, existing := range d.cartItems {
		if existing.CartID == item.CartID && existing.BookID == item.BookID {
			return model.Errorf(model.ErrDuplicateCartItem, "book %s", item.BookID)
		}
	}
	d.cartItems[item.ID] = *item
	return nil
}

func (t *tx) DeleteCartItem(_ context.Context, id uuid.UUID) error {
	delete(t.view().cartItems, id)
	return nil
}

func (t *tx) InsertPurchase(_ context.Context, p *model.Purchase) error {
	d := t.view()
	d.purchases = append(d.purchases, *p)
	return nil
}

func (t *tx) AppendEvent(_ context.Context, e *model.Event) error {
	d := t.view()
	for _, existing := range d.events {
		if existing.AggregateID == e.AggregateID && existing.Version == e.Version {
			return fmt.Errorf("event version %d for %s: %w", e.Version, e.AggregateID, store.ErrConcurrencyConflict)
		}
	}
	d.nextEvent++
	e.ID = d.nextEvent
	d.events = append(d.events, *e)
	return nil
}
