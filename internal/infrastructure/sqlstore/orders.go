package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
)

const orderColumns = `id, user_id, order_date, total_amount, status, payment_method, invoice_number, paid_at,
	refund_status, refund_reason, refund_requested_at, refund_decision_at, refund_decided_by, refund_reject_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                              order.Order
		status, method, refundStatus   string
		paidAt, requestedAt, decidedAt sql.NullTime
		decidedBy                      sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &o.TotalAmount, &status, &method, &o.InvoiceNumber, &paidAt,
		&refundStatus, &o.Refund.Reason, &requestedAt, &decidedAt, &decidedBy, &o.Refund.RejectReason)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = payment.Method(method)
	o.Refund.Status = order.RefundStatus(refundStatus)
	o.PaidAt = timePtr(paidAt)
	o.Refund.RequestedAt = timePtr(requestedAt)
	o.Refund.DecidedAt = timePtr(decidedAt)
	if decidedBy.Valid {
		by := decidedBy.Int64
		o.Refund.DecidedBy = &by
	}
	return &o, nil
}

func (q *queries) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if q.lock {
		query += q.d.forUpdate
	}
	o, err := scanOrder(q.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find order %d: %w", id, err)
	}
	if err := q.attachLines(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (q *queries) List(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.RefundStatus != "" {
		where = append(where, "refund_status = ?")
		args = append(args, string(filter.RefundStatus))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY order_date DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: order rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("sqlstore: close order rows: %w", err)
	}
	if err := q.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (q *queries) attachLines(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*order.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	marks, args := inClause(ids)
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, price_per_unit, created_at
		FROM order_items WHERE order_id IN (`+marks+`) ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.PricePerUnit, &l.CreatedAt); err != nil {
			return fmt.Errorf("sqlstore: scan order line: %w", err)
		}
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlstore: order line rows: %w", err)
	}
	return nil
}

// Insert stores the order row and its lines. Lines are written one by one so every line gets
// its own id on both dialects.
func (q *queries) Insert(ctx context.Context, o *order.Order) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO orders (user_id, order_date, total_amount, status, payment_method, invoice_number, paid_at,
			refund_status, refund_reason, refund_reject_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.OrderDate.UTC(), o.TotalAmount, string(o.Status), string(o.PaymentMethod), o.InvoiceNumber,
		nullTime(o.PaidAt), string(o.Refund.Status), o.Refund.Reason, o.Refund.RejectReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: insert order %s: %w", o.InvoiceNumber, order.ErrConflict)
		}
		return fmt.Errorf("sqlstore: insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlstore: order id: %w", err)
	}
	o.ID = id

	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = id
		res, err := q.q.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, price_per_unit, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.OrderID, l.ProductID, l.ProductName, l.Quantity, l.PricePerUnit, l.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlstore: insert order line: %w", err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqlstore: order line id: %w", err)
		}
	}
	return nil
}

func (q *queries) UpdateRefund(ctx context.Context, o *order.Order, from order.RefundStatus) error {
	var decidedBy sql.NullInt64
	if o.Refund.DecidedBy != nil {
		decidedBy = sql.NullInt64{Int64: *o.Refund.DecidedBy, Valid: true}
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE orders SET refund_status = ?, refund_reason = ?, refund_requested_at = ?, refund_decision_at = ?,
			refund_decided_by = ?, refund_reject_reason = ?
		WHERE id = ? AND refund_status = ?`,
		string(o.Refund.Status), o.Refund.Reason, nullTime(o.Refund.RequestedAt), nullTime(o.Refund.DecidedAt),
		decidedBy, o.Refund.RejectReason, o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: update refund of order %d: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update refund rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: refund of order %d left %s: %w", o.ID, from, order.ErrConflict)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
