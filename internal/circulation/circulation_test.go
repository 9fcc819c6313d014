package circulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookstore/internal/eventlog"
	"bookstore/internal/inventory"
	"bookstore/internal/model"
	"bookstore/internal/notify"
	"bookstore/internal/store"
	"bookstore/internal/store/memstore"
	"bookstore/internal/testutil"
	"bookstore/internal/waitlist"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memstore.Store
	clock    *testutil.Clock
	notifier *notify.Recorder
	queue    *waitlist.Manager
	svc      Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		clock:    testutil.NewClock(),
		notifier: notify.NewRecorder(),
	}
	events := eventlog.New()
	f.queue = waitlist.NewManager(f.store, f.notifier, events, waitlist.WithClock(f.clock.Now))
	f.svc = NewService(f.store, f.queue, events, append([]Option{WithClock(f.clock.Now)}, opts...)...)
	return f
}

func (f *fixture) available(t *testing.T, bookID uuid.UUID) int {
	t.Helper()
	n, err := inventory.NewLedger(f.store).AvailableCopies(context.Background(), bookID)
	require.NoError(t, err)
	return n
}

type failingQueue struct{ err error }

func (q failingQueue) NotifyNext(context.Context, uuid.UUID) (*waitlist.Notification, error) {
	return nil, q.err
}

func TestBorrowAndReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := testutil.SeedUser(t, f.store)
	book := testutil.SeedBook(t, f.store, testutil.Copies(2))

	borrow, err := f.svc.Borrow(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), borrow.StartDate)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), borrow.EndDate)
	assert.Equal(t, 1, f.available(t, book.ID))

	f.clock.Advance(24 * time.Hour)
	result, err := f.svc.Return(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, result.Borrow.Returned)
	require.NotNil(t, result.Borrow.ReturnedAt)
	assert.Equal(t, f.clock.Now(), *result.Borrow.ReturnedAt)
	assert.Nil(t, result.Notification, "nobody was waiting")
	assert.False(t, result.Degraded())
	assert.Equal(t, 2, f.available(t, book.ID))

	history, err := eventlog.New().History(ctx, f.store, borrow.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, eventlog.BorrowCreated, history[0].EventType)
	assert.Equal(t, eventlog.BorrowReturned, history[1].EventType)
}

func TestFourthDistinctBookIsRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := testutil.SeedUser(t, f.store)

	for i := 0; i < 3; i++ {
		book := testutil.SeedBook(t, f.store)
		_, err := f.svc.Borrow(ctx, user.ID, book.ID)
		require.NoError(t, err)
	}

	fourth := testutil.SeedBook(t, f.store)
	_, err := f.svc.Borrow(ctx, user.ID, fourth.ID)
	assert.ErrorIs(t, err, model.ErrBorrowLimitReached)
	assert.Equal(t, 1, f.available(t, fourth.ID), "a refused borrow writes nothing")

	active, err := f.svc.ActiveBorrows(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestConfigurableLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLimit(1))
	user := testutil.SeedUser(t, f.store)

	_, err := f.svc.Borrow(ctx, user.ID, testutil.SeedBook(t, f.store).ID)
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, user.ID, testutil.SeedBook(t, f.store).ID)
	assert.ErrorIs(t, err, model.ErrBorrowLimitReached)
}

func TestBorrowRefusals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := testutil.SeedUser(t, f.store)
	other := testutil.SeedUser(t, f.store)

	book := testutil.SeedBook(t, f.store, testutil.Copies(2))
	_, err := f.svc.Borrow(ctx, user.ID, book.ID)
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, user.ID, book.ID)
	assert.ErrorIs(t, err, model.ErrDuplicateBorrow)

	single := testutil.SeedBook(t, f.store, testutil.Copies(1))
	_, err = f.svc.Borrow(ctx, other.ID, single.ID)
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, user.ID, single.ID)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	buyOnly := testutil.SeedBook(t, f.store, testutil.BuyOnly())
	_, err = f.svc.Borrow(ctx, user.ID, buyOnly.ID)
	assert.ErrorIs(t, err, model.ErrNotBorrowable)

	_, err = f.svc.Borrow(ctx, user.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.svc.Borrow(ctx, uuid.New(), book.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentBorrowsOfLastCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := testutil.SeedBook(t, f.store, testutil.Copies(1))

	var users []*model.User
	for i := 0; i < 10; i++ {
		users = append(users, testutil.SeedUser(t, f.store))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		refusals  int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u *model.User) {
			defer wg.Done()
			_, err := f.svc.Borrow(ctx, u.ID, book.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrCapacityExceeded):
				refusals++
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "only one concurrent borrow should succeed")
	assert.Equal(t, 9, refusals)
	assert.Zero(t, f.available(t, book.ID))
}

func TestReturnNotifiesHeadOfQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	holder := testutil.SeedUser(t, f.store)
	first := testutil.SeedUser(t, f.store)
	second := testutil.SeedUser(t, f.store)
	book := testutil.SeedBook(t, f.store)

	_, err := f.svc.Borrow(ctx, holder.ID, book.ID)
	require.NoError(t, err)
	_, err = f.queue.Join(ctx, first.ID, book.ID)
	require.NoError(t, err)
	_, err = f.queue.Join(ctx, second.ID, book.ID)
	require.NoError(t, err)

	result, err := f.svc.Return(ctx, holder.ID, book.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Notification)
	assert.True(t, result.Notification.Delivered)
	assert.Equal(t, first.ID, result.Notification.Entry.UserID)
	assert.False(t, result.Degraded())

	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, first.Email, msgs[0].To)

	entries, err := f.queue.Entries(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].UserID)
	assert.Equal(t, 1, entries[0].Position)
}

func TestFailedDeliveryDoesNotUndoReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	holder := testutil.SeedUser(t, f.store)
	waiting := testutil.SeedUser(t, f.store)
	book := testutil.SeedBook(t, f.store)

	_, err := f.svc.Borrow(ctx, holder.ID, book.ID)
	require.NoError(t, err)
	_, err = f.queue.Join(ctx, waiting.ID, book.ID)
	require.NoError(t, err)

	f.notifier.FailWith(errors.New("smtp relay down"))
	result, err := f.svc.Return(ctx, holder.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, result.Degraded())
	require.NotNil(t, result.Notification)
	assert.False(t, result.Notification.Delivered)
	assert.Equal(t, 1, f.available(t, book.ID))

	entries, err := f.queue.Entries(ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "the head is dequeued even when the email bounces")
}

func TestQueueFailureDoesNotUndoReturn(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := NewService(s, failingQueue{err: errors.New("queue unavailable")}, eventlog.New())
	user := testutil.SeedUser(t, s)
	book := testutil.SeedBook(t, s)

	_, err := svc.Borrow(ctx, user.ID, book.ID)
	require.NoError(t, err)

	result, err := svc.Return(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, result.Degraded())
	assert.EqualError(t, result.NotifyErr, "queue unavailable")

	active, err := s.GetActiveBorrow(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestReturnWithoutBorrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := testutil.SeedUser(t, f.store)
	book := testutil.SeedBook(t, f.store)

	_, err := f.svc.Return(ctx, user.ID, book.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBorrowConsumesOwnWaitingEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	holder := testutil.SeedUser(t, f.store)
	first := testutil.SeedUser(t, f.store)
	second := testutil.SeedUser(t, f.store)
	book := testutil.SeedBook(t, f.store)

	testutil.SeedBorrow(t, f.store, holder.ID, book.ID, f.clock.Now())
	testutil.SeedWaiting(t, f.store, first.ID, book.ID)
	testutil.SeedWaiting(t, f.store, second.ID, book.ID)

	// The holder returns outside the service, so nobody is notified.
	testutil.Tx(t, f.store, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetActiveBorrow(ctx, holder.ID, book.ID)
		if err != nil {
			return err
		}
		_, err = tx.MarkBorrowReturned(ctx, b.ID, f.clock.Now())
		return err
	})

	_, err := f.svc.Borrow(ctx, second.ID, book.ID)
	require.NoError(t, err)

	entries, err := f.queue.Entries(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ID, entries[0].UserID)
	assert.Equal(t, 1, entries[0].Position)
}

func TestExpireOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	late := testutil.SeedUser(t, f.store)
	onTime := testutil.SeedUser(t, f.store)
	waiting := testutil.SeedUser(t, f.store)
	book := testutil.SeedBook(t, f.store, testutil.Copies(2))

	_, err := f.svc.Borrow(ctx, late.ID, book.ID)
	require.NoError(t, err)
	f.clock.Advance(10 * 24 * time.Hour)
	_, err = f.svc.Borrow(ctx, onTime.ID, book.ID)
	require.NoError(t, err)
	_, err = f.queue.Join(ctx, waiting.ID, book.ID)
	require.NoError(t, err)

	f.clock.Advance(25 * 24 * time.Hour)
	sweeper := NewSweeper(f.svc, nil)
	sweeper.now = f.clock.Now
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, []uuid.UUID{book.ID}, report.Books)
	assert.Equal(t, 1, report.Notified)
	assert.Zero(t, report.Failures)

	active, err := f.svc.ActiveBorrows(ctx, late.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	active, err = f.svc.ActiveBorrows(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	history, err := f.svc.History(ctx, late.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Returned)

	again, err := f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, again.Expired)
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	sweeper := NewSweeper(f.svc, nil)
	assert.Error(t, sweeper.Start("every tuesday"))
	sweeper.Stop()
}

func TestLimitPolicyDefaults(t *testing.T) {
	assert.Equal(t, model.DefaultBorrowLimit, NewLimitPolicy(0).Limit())
	assert.Equal(t, 5, NewLimitPolicy(5).Limit())
}
