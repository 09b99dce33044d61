package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

const (
	driverMySQL  = "mysql"
	driverSQLite = "sqlite3"

	mysqlDuplicateEntry = 1062
)

type dialect struct {
	name       string
	autoID     string
	timestamp  string
	largeText  string
	tableOpts  string
	forUpdate  string
	upsertCart string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case driverMySQL:
		return dialect{
			name:       driverMySQL,
			autoID:     "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
			timestamp:  "DATETIME(6)",
			largeText:  "MEDIUMTEXT",
			tableOpts:  " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
			forUpdate:  " FOR UPDATE",
			upsertCart: "INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)",
		}, nil
	case driverSQLite:
		return dialect{
			name:       driverSQLite,
			autoID:     "INTEGER PRIMARY KEY AUTOINCREMENT",
			timestamp:  "DATETIME",
			largeText:  "TEXT",
			upsertCart: "INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?) ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = excluded.quantity",
		}, nil
	default:
		return dialect{}, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// index renders a secondary index: inline for MySQL, a separate statement for SQLite.
func (d dialect) index(table, name, cols string) (inline, separate string) {
	if d.name == driverMySQL {
		return fmt.Sprintf(",\n\tKEY %s (%s)", name, cols), ""
	}
	return "", fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, cols)
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// inClause returns "?, ?, ?" for n ids and the matching args.
func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}
