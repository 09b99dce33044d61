// Package sqlitetest opens throwaway SQLite stores for tests of packages built on sqlstore.
package sqlitetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

// Open returns a migrated store on a fresh database file and the raw pool behind it.
func Open(t testing.TB) (*sqlstore.Store, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "storefront.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := sqlstore.New(db, "sqlite3")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s, db
}

func Product(t testing.TB, s *sqlstore.Store, name, price string, stock int) *catalog.Product {
	t.Helper()
	p := &catalog.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
	require.NoError(t, s.InsertProduct(context.Background(), p))
	return p
}

func Stock(t testing.TB, s *sqlstore.Store, productID int64) int {
	t.Helper()
	p, err := s.FindProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func AddToCart(t testing.TB, s *sqlstore.Store, userID, productID int64, qty int) {
	t.Helper()
	require.NoError(t, s.SaveLine(context.Background(), cart.Line{UserID: userID, ProductID: productID, Quantity: qty}))
}

// SetPrice changes a catalog price behind the store's back.
func SetPrice(t testing.TB, db *sql.DB, productID int64, price string) {
	t.Helper()
	_, err := db.Exec(`UPDATE products SET price = ? WHERE id = ?`, price, productID)
	require.NoError(t, err)
}

// SetStock overwrites a product's stock.
func SetStock(t testing.TB, db *sql.DB, productID int64, stock int) {
	t.Helper()
	_, err := db.Exec(`UPDATE products SET stock_quantity = ? WHERE id = ?`, stock, productID)
	require.NoError(t, err)
}
