// internal/store/postgres/queries.go
package postgres

import (
	"context"
	"time"

	"bookstore/internal/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	userColumns     = `id, email, name, created_at`
	bookColumns     = `id, isbn, title, author, total_copies, purchase_price, borrow_price, buy_only, created_at, updated_at`
	borrowColumns   = `id, book_id, user_id, start_date, end_date, returned, returned_at`
	discountColumns = `id, book_id, percent, start_date, end_date, active`
	entryColumns    = `id, book_id, user_id, joined_at, position, notified`
	cartItemColumns = `id, cart_id, book_id, intent, price, discount_id, added_at`
)

// queries implements store.Querier over a pool or an open transaction.
type queries struct {
	q sqlx.ExtContext
}

func (r queries) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := sqlx.GetContext(ctx, r.q, u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("get user", err, "user %s", id)
	}
	return u, nil
}

func (r queries) ListUsers(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	if err := sqlx.SelectContext(ctx, r.q, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at`); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

func (r queries) GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	b := &model.Book{}
	err := sqlx.GetContext(ctx, r.q, b, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("get book", err, "book %s", id)
	}
	return b, nil
}

func (r queries) ListBooks(ctx context.Context) ([]*model.Book, error) {
	var books []*model.Book
	if err := sqlx.SelectContext(ctx, r.q, &books, `SELECT `+bookColumns+` FROM books ORDER BY title`); err != nil {
		return nil, classify("list books", err)
	}
	return books, nil
}

func (r queries) CountActiveBorrows(ctx context.Context, bookID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM borrows WHERE book_id = $1 AND NOT returned`, bookID)
	if err != nil {
		return 0, classify("count active borrows", err)
	}
	return n, nil
}

func (r queries) CountDistinctActiveBooks(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(DISTINCT book_id) FROM borrows WHERE user_id = $1 AND NOT returned`, userID)
	if err != nil {
		return 0, classify("count distinct active books", err)
	}
	return n, nil
}

func (r queries) GetActiveBorrow(ctx context.Context, userID, bookID uuid.UUID) (*model.Borrow, error) {
	b := &model.Borrow{}
	err := sqlx.GetContext(ctx, r.q, b, `
		SELECT `+borrowColumns+`
		FROM borrows
		WHERE user_id = $1 AND book_id = $2 AND NOT returned
	`, userID, bookID)
	if found, err := optional("get active borrow", err); !found {
		return nil, err
	}
	return b, nil
}

func (r queries) ActiveBorrowsByBook(ctx context.Context, bookID uuid.UUID) ([]*model.Borrow, error) {
	var borrows []*model.Borrow
	err := sqlx.SelectContext(ctx, r.q, &borrows, `
		SELECT `+borrowColumns+`
		FROM borrows
		WHERE book_id = $1 AND NOT returned
		ORDER BY end_date ASC, id
	`, bookID)
	if err != nil {
		return nil, classify("list active borrows", err)
	}
	return borrows, nil
}

func (r queries) BorrowsByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*model.Borrow, error) {
	var borrows []*model.Borrow
	err := sqlx.SelectContext(ctx, r.q, &borrows, `
		SELECT `+borrowColumns+`
		FROM borrows
		WHERE user_id = $1 AND (NOT $2 OR NOT returned)
		ORDER BY start_date
	`, userID, activeOnly)
	if err != nil {
		return nil, classify("list user borrows", err)
	}
	return borrows, nil
}

func (r queries) OverdueBorrows(ctx context.Context, at time.Time) ([]*model.Borrow, error) {
	var borrows []*model.Borrow
	err := sqlx.SelectContext(ctx, r.q, &borrows, `
		SELECT `+borrowColumns+`
		FROM borrows
		WHERE NOT returned AND end_date <= $1
		ORDER BY end_date
	`, at)
	if err != nil {
		return nil, classify("list overdue borrows", err)
	}
	return borrows, nil
}

func (r queries) GetDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	d := &model.Discount{}
	err := sqlx.GetContext(ctx, r.q, d, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("get discount", err, "discount %s", id)
	}
	return d, nil
}

func (r queries) DiscountsByBook(ctx context.Context, bookID uuid.UUID) ([]*model.Discount, error) {
	var discounts []*model.Discount
	err := sqlx.SelectContext(ctx, r.q, &discounts, `
		SELECT `+discountColumns+`
		FROM discounts
		WHERE book_id = $1
		ORDER BY start_date
	`, bookID)
	if err != nil {
		return nil, classify("list discounts", err)
	}
	return discounts, nil
}

func (r queries) ActiveDiscountAt(ctx context.Context, bookID uuid.UUID, at time.Time) (*model.Discount, error) {
	d := &model.Discount{}
	err := sqlx.GetContext(ctx, r.q, d, `
		SELECT `+discountColumns+`
		FROM discounts
		WHERE book_id = $1 AND active AND start_date <= $2 AND $2 < end_date
		ORDER BY start_date
		LIMIT 1
	`, bookID, at)
	if found, err := optional("get active discount", err); !found {
		return nil, err
	}
	return d, nil
}

func (r queries) WaitingList(ctx context.Context, bookID uuid.UUID) ([]*model.WaitingListEntry, error) {
	var entries []*model.WaitingListEntry
	err := sqlx.SelectContext(ctx, r.q, &entries, `
		SELECT `+entryColumns+`
		FROM waiting_list_entries
		WHERE book_id = $1
		ORDER BY position
	`, bookID)
	if err != nil {
		return nil, classify("list waiting entries", err)
	}
	return entries, nil
}

func (r queries) GetWaitingEntry(ctx context.Context, userID, bookID uuid.UUID) (*model.WaitingListEntry, error) {
	e := &model.WaitingListEntry{}
	err := sqlx.GetContext(ctx, r.q, e, `
		SELECT `+entryColumns+`
		FROM waiting_list_entries
		WHERE user_id = $1 AND book_id = $2
	`, userID, bookID)
	if found, err := optional("get waiting entry", err); !found {
		return nil, err
	}
	return e, nil
}

func (r queries) MaxWaitingPosition(ctx context.Context, bookID uuid.UUID) (int, error) {
	var highest int
	err := sqlx.GetContext(ctx, r.q, &highest, `SELECT COALESCE(MAX(position), 0) FROM waiting_list_entries WHERE book_id = $1`, bookID)
	if err != nil {
		return 0, classify("max waiting position", err)
	}
	return highest, nil
}

func (r queries) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	c := &model.Cart{}
	err := sqlx.GetContext(ctx, r.q, c, `SELECT id, user_id, created_at FROM carts WHERE user_id = $1`, userID)
	if found, err := optional("get cart", err); !found {
		return nil, err
	}
	return c, nil
}

func (r queries) CartItems(ctx context.Context, cartID uuid.UUID) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := sqlx.SelectContext(ctx, r.q, &items, `
		SELECT `+cartItemColumns+`
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at, id
	`, cartID)
	if err != nil {
		return nil, classify("list cart items", err)
	}
	return items, nil
}

func (r queries) PurchasesByUser(ctx context.Context, userID uuid.UUID) ([]*model.Purchase, error) {
	var purchases []*model.Purchase
	err := sqlx.SelectContext(ctx, r.q, &purchases, `
		SELECT id, user_id, book_id, price, discount_id, purchased_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY purchased_at
	`, userID)
	if err != nil {
		return nil, classify("list purchases", err)
	}
	return purchases, nil
}

func (r queries) Events(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]model.Event, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, version, created_at
		FROM events
		WHERE aggregate_id = $1
		AND version >= $2
	`
	args := []interface{}{aggregateID, fromVersion}

	if toVersion > 0 {
		query += " AND version <= $3"
		args = append(args, toVersion)
	}

	query += " ORDER BY version ASC"

	var events []model.Event
	if err := sqlx.SelectContext(ctx, r.q, &events, query, args...); err != nil {
		return nil, classify("query events", err)
	}
	return events, nil
}

func (r queries) LatestEventVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, r.q, &version, `SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`, aggregateID)
	if err != nil {
		return 0, classify("query version", err)
	}
	return version, nil
}
