package waitlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookstore/internal/eventlog"
	"bookstore/internal/model"
	"bookstore/internal/notify"
	"bookstore/internal/store/memstore"
	"bookstore/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fullBook seeds a one-copy book that someone already holds, so others may queue.
func fullBook(t testutil.T, s *memstore.Store) *model.Book {
	book := testutil.SeedBook(t, s)
	holder := testutil.SeedUser(t, s)
	testutil.SeedBorrow(t, s, holder.ID, book.ID, testutil.Epoch)
	return book
}

func userIDs(entries []*model.WaitingListEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids
}

func positions(entries []*model.WaitingListEntry) []int {
	ps := make([]int, len(entries))
	for i, e := range entries {
		ps[i] = e.Position
	}
	return ps
}

func TestJoinAssignsNextPosition(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := NewManager(s, notify.NewRecorder(), eventlog.New())
	book := fullBook(t, s)

	for want := 1; want <= 3; want++ {
		entry, err := m.Join(ctx, testutil.SeedUser(t, s).ID, book.ID)
		require.NoError(t, err)
		assert.Equal(t, want, entry.Position)
	}
}

func TestJoinRefusals(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := NewManager(s, notify.NewRecorder(), eventlog.New())
	user := testutil.SeedUser(t, s)

	book := fullBook(t, s)
	_, err := m.Join(ctx, user.ID, book.ID)
	require.NoError(t, err)
	_, err = m.Join(ctx, user.ID, book.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyQueued)

	free := testutil.SeedBook(t, s)
	_, err = m.Join(ctx, user.ID, free.ID)
	assert.ErrorIs(t, err, model.ErrCopiesAvailable)

	buyOnly := testutil.SeedBook(t, s, testutil.BuyOnly(), testutil.Copies(0))
	_, err = m.Join(ctx, user.ID, buyOnly.ID)
	assert.ErrorIs(t, err, model.ErrNotBorrowable)

	held := testutil.SeedBook(t, s)
	testutil.SeedBorrow(t, s, user.ID, held.ID, testutil.Epoch)
	_, err = m.Join(ctx, user.ID, held.ID)
	assert.ErrorIs(t, err, model.ErrDuplicateBorrow)

	_, err = m.Join(ctx, uuid.New(), book.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = m.Join(ctx, user.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLeaveCompactsPositions(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := NewManager(s, notify.NewRecorder(), eventlog.New())
	book := fullBook(t, s)

	a := testutil.SeedWaiting(t, s, testutil.SeedUser(t, s).ID, book.ID)
	b := testutil.SeedWaiting(t, s, testutil.SeedUser(t, s).ID, book.ID)
	c := testutil.SeedWaiting(t, s, testutil.SeedUser(t, s).ID, book.ID)

	require.NoError(t, m.Leave(ctx, b.UserID, book.ID))

	entries, err := m.Entries(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.UserID, c.UserID}, userIDs(entries))
	assert.Equal(t, []int{1, 2}, positions(entries))

	pos, err := m.Position(ctx, c.UserID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Position)

	assert.ErrorIs(t, m.Leave(ctx, b.UserID, book.ID), model.ErrNotFound)
	_, err = m.Position(ctx, b.UserID, book.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestJoinThenLeaveRestoresQueue(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := NewManager(s, notify.NewRecorder(), eventlog.New())
	book := fullBook(t, s)
	for i := 0; i < 3; i++ {
		testutil.SeedWaiting(t, s, testutil.SeedUser(t, s).ID, book.ID)
	}

	before, err := m.Entries(ctx, book.ID)
	require.NoError(t, err)

	late := testutil.SeedUser(t, s)
	_, err = m.Join(ctx, late.ID, book.ID)
	require.NoError(t, err)
	require.NoError(t, m.Leave(ctx, late.ID, book.ID))

	after, err := m.Entries(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNotifyNext(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	rec := notify.NewRecorder()
	m := NewManager(s, rec, eventlog.New())
	book := fullBook(t, s)

	n, err := m.NotifyNext(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, n, "empty queue")

	first := testutil.SeedUser(t, s)
	second := testutil.SeedUser(t, s)
	testutil.SeedWaiting(t, s, first.ID, book.ID)
	testutil.SeedWaiting(t, s, second.ID, book.ID)

	n, err = m.NotifyNext(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.True(t, n.Delivered)
	assert.True(t, n.Entry.Notified)
	assert.Equal(t, first.ID, n.User.ID)

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, first.Email, msgs[0].To)
	assert.Contains(t, msgs[0].Subject, book.Title)

	entries, err := m.Entries(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].UserID)
	assert.Equal(t, 1, entries[0].Position)

	_, err = m.NotifyNext(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNotifyNextDeliveryFailureStillDequeues(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	rec := notify.NewRecorder()
	m := NewManager(s, rec, eventlog.New())
	book := fullBook(t, s)
	user := testutil.SeedUser(t, s)
	testutil.SeedWaiting(t, s, user.ID, book.ID)

	boom := errors.New("mailbox full")
	rec.FailWith(boom)

	n, err := m.NotifyNext(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.False(t, n.Delivered)
	assert.ErrorIs(t, n.Err, boom)

	entries, err := m.Entries(ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEstimateAvailability(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := NewManager(s, notify.NewRecorder(), eventlog.New())
	book := testutil.SeedBook(t, s, testutil.Copies(2))

	eta, err := m.EstimateAvailability(ctx, book.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, eta, "nothing is out")

	early := testutil.SeedBorrow(t, s, testutil.SeedUser(t, s).ID, book.ID, testutil.Epoch)
	late := testutil.SeedBorrow(t, s, testutil.SeedUser(t, s).ID, book.ID, testutil.Epoch.Add(5*24*time.Hour))

	eta, err = m.EstimateAvailability(ctx, book.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Equal(t, early.EndDate, *eta)

	eta, err = m.EstimateAvailability(ctx, book.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Equal(t, late.EndDate, *eta)

	eta, err = m.EstimateAvailability(ctx, book.ID, 3)
	require.NoError(t, err)
	assert.Nil(t, eta)

	_, err = m.EstimateAvailability(ctx, book.ID, 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = m.EstimateAvailability(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentJoinsStayDense(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := NewManager(s, notify.NewRecorder(), eventlog.New())
	book := fullBook(t, s)

	var users []*model.User
	for i := 0; i < 20; i++ {
		users = append(users, testutil.SeedUser(t, s))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := m.Join(ctx, id, book.ID)
			assert.NoError(t, err)
		}(u.ID)
	}
	wg.Wait()

	entries, err := m.Entries(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(users))
	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
	}
	assert.Zero(t, m.locks.size())
}

func TestQueueStaysDenseAndOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := memstore.New()
		m := NewManager(s, notify.NewRecorder(), eventlog.New())
		book := fullBook(t, s)

		var pool []uuid.UUID
		for i := 0; i < 6; i++ {
			pool = append(pool, testutil.SeedUser(t, s).ID)
		}

		var queue []uuid.UUID
		index := func(id uuid.UUID) int {
			for i, q := range queue {
				if q == id {
					return i
				}
			}
			return -1
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			user := pool[rapid.IntRange(0, len(pool)-1).Draw(t, "user")]
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				_, err := m.Join(ctx, user, book.ID)
				if index(user) >= 0 {
					if !errors.Is(err, model.ErrAlreadyQueued) {
						t.Fatalf("rejoin: got %v", err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("join: %v", err)
				}
				queue = append(queue, user)
			case 1:
				err := m.Leave(ctx, user, book.ID)
				at := index(user)
				if at < 0 {
					if !errors.Is(err, model.ErrNotFound) {
						t.Fatalf("leave absent: got %v", err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("leave: %v", err)
				}
				queue = append(queue[:at], queue[at+1:]...)
			case 2:
				n, err := m.NotifyNext(ctx, book.ID)
				if err != nil {
					t.Fatalf("notify next: %v", err)
				}
				if len(queue) == 0 {
					if n != nil {
						t.Fatalf("notified %s from an empty queue", n.User.ID)
					}
					continue
				}
				if n == nil || n.User.ID != queue[0] {
					t.Fatalf("expected head %s to be notified", queue[0])
				}
				queue = queue[1:]
			}

			entries, err := m.Entries(ctx, book.ID)
			if err != nil {
				t.Fatalf("entries: %v", err)
			}
			if len(entries) != len(queue) {
				t.Fatalf("queue length %d, want %d", len(entries), len(queue))
			}
			for j, e := range entries {
				if e.Position != j+1 {
					t.Fatalf("entry %d has position %d", j, e.Position)
				}
				if e.UserID != queue[j] {
					t.Fatalf("position %d held by %s, want %s", j+1, e.UserID, queue[j])
				}
			}
		}
	})
}

func TestKeyedLockReleasesIdleKeys(t *testing.T) {
	k := newKeyedLock()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	unlockB := k.Lock(b)
	assert.Equal(t, 2, k.size())

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock(a)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked key")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released key")
	}

	unlockB()
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, 5*time.Millisecond)
}
