package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
)

func (q *queries) FindProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	var p catalog.Product
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, price, stock_quantity, image, category_id FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.Image, &p.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find product %d: %w", id, err)
	}
	return &p, nil
}

// InsertProduct stores p and assigns its id. Used by seeding and tests; catalog management is
// not part of the storefront API.
func (q *queries) InsertProduct(ctx context.Context, p *catalog.Product) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO products (name, price, stock_quantity, image, category_id) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Price, p.StockQuantity, p.Image, p.CategoryID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlstore: product id: %w", err)
	}
	p.ID = id
	return nil
}

// Decrement clamps at zero in the same statement, so concurrent sales never read stale stock.
func (q *queries) Decrement(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	_, err := q.q.ExecContext(ctx,
		`UPDATE products SET stock_quantity = CASE WHEN stock_quantity > ? THEN stock_quantity - ? ELSE 0 END WHERE id = ?`,
		qty, qty, productID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: decrement stock of %d: %w", productID, err)
	}
	return nil
}

func (q *queries) Increment(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	_, err := q.q.ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + ? WHERE id = ?`, qty, productID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: increment stock of %d: %w", productID, err)
	}
	return nil
}
