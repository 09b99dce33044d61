package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
)

const cartItemColumns = `c.product_id, p.name, p.image, c.quantity, p.price, p.stock_quantity`

func (q *queries) Items(ctx context.Context, userID int64) ([]cart.Item, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ? ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: cart items: %w", err)
	}
	return scanCartItems(rows)
}

func (q *queries) SelectedItems(ctx context.Context, userID int64, productIDs []int64) ([]cart.Item, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	marks, args := inClause(productIDs)
	query := `SELECT ` + cartItemColumns + ` FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ? AND c.product_id IN (` + marks + `) ORDER BY c.id`
	if q.lock {
		query += q.d.forUpdate
	}
	rows, err := q.q.QueryContext(ctx, query, append([]any{userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: selected cart items: %w", err)
	}
	return scanCartItems(rows)
}

func scanCartItems(rows *sql.Rows) ([]cart.Item, error) {
	defer rows.Close()
	var items []cart.Item
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Image, &it.Quantity, &it.Price, &it.Stock); err != nil {
			return nil, fmt.Errorf("sqlstore: scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: cart rows: %w", err)
	}
	return items, nil
}

func (q *queries) FindLine(ctx context.Context, userID, productID int64) (*cart.Line, error) {
	l := cart.Line{UserID: userID, ProductID: productID}
	err := q.q.QueryRowContext(ctx,
		`SELECT quantity FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID,
	).Scan(&l.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find cart line: %w", err)
	}
	return &l, nil
}

func (q *queries) SaveLine(ctx context.Context, line cart.Line) error {
	if line.Quantity < 1 {
		return cart.ErrInvalidQuantity
	}
	if _, err := q.q.ExecContext(ctx, q.d.upsertCart, line.UserID, line.ProductID, line.Quantity); err != nil {
		return fmt.Errorf("sqlstore: save cart line: %w", err)
	}
	return nil
}

func (q *queries) DeleteLine(ctx context.Context, userID, productID int64) error {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete cart line: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteAll(ctx context.Context, userID int64) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlstore: clear cart: %w", err)
	}
	return nil
}

// DeleteLines removes exactly the given products from the user's cart.
func (q *queries) DeleteLines(ctx context.Context, userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	marks, args := inClause(productIDs)
	_, err := q.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND product_id IN (`+marks+`)`,
		append([]any{userID}, args...)...)
	if err != nil {
		return fmt.Errorf("sqlstore: delete cart lines: %w", err)
	}
	return nil
}
