// Package sqlstore implements the relational repositories on database/sql for MySQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Store runs them on the pool and Tx inside one transaction.
type queries struct {
	q queryer
	d dialect
	// lock appends the dialect's row lock to reads that precede a write.
	lock bool
}

// Store is the pool-backed entry point. It implements the catalog, cart, order and payment
// repositories and order.UnitOfWork.
type Store struct {
	queries
	db *sql.DB
}

// Tx is the transactional view handed to WithTx callbacks. It implements order.Tx.
type Tx struct {
	queries
}

// Open connects with driver ("mysql" or "sqlite3") and verifies the connection.
// MySQL DSNs need parseTime=true.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	s, err := New(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if driver == driverSQLite {
		// SQLite allows one writer, and ":memory:" databases exist per connection.
		db.SetMaxOpenConns(1)
	} else if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}
	return s, nil
}

// New wraps an existing pool.
func New(db *sql.DB, driver string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{queries: queries{q: db, d: d}, db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WaitReady pings until the database answers or attempts run out.
func (s *Store) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("sqlstore: database not ready after %d attempts: %w", attempts, err)
}

// WithTx runs fn in a transaction. Callbacks must only use tx: with a single-connection pool
// any query on the Store would block until the transaction ends.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &Tx{queries: queries{q: sqlTx, d: s.d, lock: true}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}
