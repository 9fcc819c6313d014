// internal/store/postgres/tx.go
package postgres

import (
	"context"
	"time"

	"bookstore/internal/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// tx implements store.Tx. Reads go through the same transaction.
type tx struct {
	queries
	sqlTx *sqlx.Tx
}

func (t *tx) LockUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := t.sqlTx.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFound("lock user", err, "user %s", id)
	}
	return u, nil
}

func (t *tx) LockBook(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	b := &model.Book{}
	err := t.sqlTx.GetContext(ctx, b, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFound("lock book", err, "book %s", id)
	}
	return b, nil
}

func (t *tx) InsertUser(ctx context.Context, u *model.User) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Email, u.Name, u.CreatedAt)
	return classify("insert user", err)
}

func (t *tx) InsertBook(ctx context.Context, b *model.Book) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO books (id, isbn, title, author, total_copies, purchase_price, borrow_price, buy_only, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.ISBN, b.Title, b.Author, b.TotalCopies, b.PurchasePrice, b.BorrowPrice, b.BuyOnly, b.CreatedAt, b.UpdatedAt)
	return classify("insert book", err)
}

func (t *tx) UpdateBookCopies(ctx context.Context, id uuid.UUID, total int) error {
	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE books
		SET total_copies = $1, updated_at = NOW()
		WHERE id = $2
	`, total, id)
	if err != nil {
		return classify("update book copies", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Errorf(model.ErrNotFound, "book %s", id)
	}
	return nil
}

func (t *tx) InsertBorrow(ctx context.Context, b *model.Borrow) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO borrows (id, book_id, user_id, start_date, end_date, returned, returned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.BookID, b.UserID, b.StartDate, b.EndDate, b.Returned, b.ReturnedAt)
	return classify("insert borrow", err)
}

func (t *tx) MarkBorrowReturned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE borrows
		SET returned = TRUE, returned_at = $1
		WHERE id = $2 AND NOT returned
	`, at, id)
	if err != nil {
		return false, classify("mark borrow returned", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("mark borrow returned", err)
	}
	return n == 1, nil
}

func (t *tx) InsertDiscount(ctx context.Context, d *model.Discount) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO discounts (id, book_id, percent, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.BookID, d.Percent, d.StartDate, d.EndDate, d.Active)
	return classify("insert discount", err)
}

func (t *tx) UpdateDiscount(ctx context.Context, d *model.Discount) error {
	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE discounts
		SET percent = $1, start_date = $2, end_date = $3, active = $4
		WHERE id = $5
	`, d.Percent, d.StartDate, d.EndDate, d.Active, d.ID)
	if err != nil {
		return classify("update discount", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Errorf(model.ErrNotFound, "discount %s", d.ID)
	}
	return nil
}

func (t *tx) InsertWaitingEntry(ctx context.Context, e *model.WaitingListEntry) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO waiting_list_entries (id, book_id, user_id, joined_at, position, notified)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.BookID, e.UserID, e.JoinedAt, e.Position, e.Notified)
	return classify("insert waiting entry", err)
}

func (t *tx) DeleteWaitingEntry(ctx context.Context, id uuid.UUID) error {
	_, err := t.sqlTx.ExecContext(ctx, `DELETE FROM waiting_list_entries WHERE id = $1`, id)
	return classify("delete waiting entry", err)
}

// ShiftWaitingPositions relies on the position constraint being deferred to
// commit, since rows are renumbered one at a time.
func (t *tx) ShiftWaitingPositions(ctx context.Context, bookID uuid.UUID, after int) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		UPDATE waiting_list_entries
		SET position = position - 1
		WHERE book_id = $1 AND position > $2
	`, bookID, after)
	return classify("shift waiting positions", err)
}

func (t *tx) EnsureCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, classify("ensure cart", err)
	}
	c := &model.Cart{}
	if err := t.sqlTx.GetContext(ctx, c, `SELECT id, user_id, created_at FROM carts WHERE user_id = $1`, userID); err != nil {
		return nil, classify("get cart", err)
	}
	return c, nil
}

func (t *tx) InsertCartItem(ctx context.Context, item *model.CartItem) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, book_id, intent, price, discount_id, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.CartID, item.BookID, string(item.Intent), item.Price, item.DiscountID, item.AddedAt)
	return classify("insert cart item", err)
}

func (t *tx) DeleteCartItem(ctx context.Context, id uuid.UUID) error {
	_, err := t.sqlTx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	return classify("delete cart item", err)
}

func (t *tx) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO purchases (id, user_id, book_id, price, discount_id, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, p.BookID, p.Price, p.DiscountID, p.PurchasedAt)
	return classify("insert purchase", err)
}

func (t *tx) AppendEvent(ctx context.Context, e *model.Event) error {
	err := t.sqlTx.QueryRowxContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.AggregateID, e.AggregateType, e.EventType, []byte(e.EventData), e.Version, e.CreatedAt).Scan(&e.ID)
	return classify("insert event", err)
}
