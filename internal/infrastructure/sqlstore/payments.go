package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
)

const paymentColumns = `id, order_id, user_id, method, status, amount, currency, provider_reference, capture_id,
	payer_email, qr_image, paid_at, created_at`

func scanPayment(row rowScanner) (*payment.Record, error) {
	var (
		r              payment.Record
		orderID        sql.NullInt64
		method, status string
		qrImage        sql.NullString
		paidAt         sql.NullTime
	)
	err := row.Scan(&r.ID, &orderID, &r.UserID, &method, &status, &r.Amount, &r.Currency, &r.Reference,
		&r.CaptureID, &r.PayerEmail, &qrImage, &paidAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		id := orderID.Int64
		r.OrderID = &id
	}
	r.Method = payment.Method(method)
	r.Status = payment.Status(status)
	r.QRImage = qrImage.String
	r.PaidAt = timePtr(paidAt)
	return &r, nil
}

func (q *queries) findPayment(ctx context.Context, where string, args ...any) (*payment.Record, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where
	if q.lock {
		query += q.d.forUpdate
	}
	r, err := scanPayment(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find payment: %w", err)
	}
	return r, nil
}

func (q *queries) FindByReference(ctx context.Context, method payment.Method, reference string) (*payment.Record, error) {
	return q.findPayment(ctx, `method = ? AND provider_reference = ?`, string(method), reference)
}

func (q *queries) FindPaidByOrder(ctx context.Context, orderID int64) (*payment.Record, error) {
	return q.findPayment(ctx, `order_id = ? AND status = ?`, orderID, string(payment.StatusPaid))
}

func (q *queries) insertPayment(ctx context.Context, r *payment.Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var orderID sql.NullInt64
	if r.OrderID != nil {
		orderID = sql.NullInt64{Int64: *r.OrderID, Valid: true}
	}
	var qrImage sql.NullString
	if r.QRImage != "" {
		qrImage = sql.NullString{String: r.QRImage, Valid: true}
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO payments (order_id, user_id, method, status, amount, currency, provider_reference, capture_id,
			payer_email, qr_image, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, r.UserID, string(r.Method), string(r.Status), r.Amount, r.Currency, r.Reference, r.CaptureID,
		r.PayerEmail, qrImage, nullTime(r.PaidAt), r.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: payment %s/%s: %w", r.Method, r.Reference, payment.ErrConflict)
		}
		return fmt.Errorf("sqlstore: insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlstore: payment id: %w", err)
	}
	r.ID = id
	return nil
}

// InsertPending records a session that has not been paid yet, such as an issued QR code.
func (q *queries) InsertPending(ctx context.Context, r *payment.Record) error {
	if r.OrderID != nil || r.Status != payment.StatusPending {
		return fmt.Errorf("sqlstore: pending payment must be unlinked and pending, got %s", r.Status)
	}
	return q.insertPayment(ctx, r)
}

func (q *queries) InsertPaid(ctx context.Context, r *payment.Record) error {
	if r.OrderID == nil || r.Status != payment.StatusPaid {
		return fmt.Errorf("sqlstore: paid payment must be linked and paid, got %s", r.Status)
	}
	return q.insertPayment(ctx, r)
}

func (q *queries) Link(ctx context.Context, recordID, orderID int64, c payment.Confirmation) error {
	paidAt := c.PaidAt.UTC()
	res, err := q.q.ExecContext(ctx,
		`UPDATE payments SET order_id = ?, status = ?, amount = ?, currency = ?, capture_id = ?, payer_email = ?, paid_at = ?
		WHERE id = ? AND order_id IS NULL AND status = ?`,
		orderID, string(payment.StatusPaid), c.Amount, c.Currency, c.CaptureID, c.PayerEmail, paidAt,
		recordID, string(payment.StatusPending),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: link payment %d: %w", recordID, payment.ErrConflict)
		}
		return fmt.Errorf("sqlstore: link payment %d: %w", recordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: link payment rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: payment %d already linked: %w", recordID, payment.ErrConflict)
	}
	return nil
}

func (q *queries) MarkPendingAs(ctx context.Context, id int64, status payment.Status) (bool, error) {
	if !status.Terminal() || status == payment.StatusPaid {
		return false, fmt.Errorf("sqlstore: cannot mark payment %d as %s", id, status)
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ? AND status = ? AND order_id IS NULL`,
		string(status), id, string(payment.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: mark payment %d %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: mark payment rows: %w", err)
	}
	return n > 0, nil
}
