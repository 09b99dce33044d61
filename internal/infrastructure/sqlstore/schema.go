package sqlstore

import (
	"context"
	"fmt"
)

func (d dialect) schema() []string {
	ordersUser, ordersUserSep := d.index("orders", "idx_orders_user", "user_id")
	itemsOrder, itemsOrderSep := d.index("order_items", "idx_order_items_order", "order_id")

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
	id %s,
	name VARCHAR(255) NOT NULL,
	price DECIMAL(10,2) NOT NULL,
	stock_quantity INT NOT NULL DEFAULT 0,
	image VARCHAR(255) NOT NULL DEFAULT '',
	category_id BIGINT NOT NULL DEFAULT 0
)%s`, d.autoID, d.tableOpts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cart_items (
	id %s,
	user_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	quantity INT NOT NULL,
	CONSTRAINT uq_cart_items_user_product UNIQUE (user_id, product_id)
)%s`, d.autoID, d.tableOpts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS orders (
	id %[1]s,
	user_id BIGINT NOT NULL,
	order_date %[2]s NOT NULL,
	total_amount DECIMAL(10,2) NOT NULL,
	status VARCHAR(20) NOT NULL,
	payment_method VARCHAR(32) NOT NULL,
	invoice_number VARCHAR(64) NOT NULL,
	paid_at %[2]s NULL,
	refund_status VARCHAR(24) NOT NULL DEFAULT 'none',
	refund_reason VARCHAR(500) NOT NULL DEFAULT '',
	refund_requested_at %[2]s NULL,
	refund_decision_at %[2]s NULL,
	refund_decided_by BIGINT NULL,
	refund_reject_reason VARCHAR(500) NOT NULL DEFAULT '',
	CONSTRAINT uq_orders_invoice_number UNIQUE (invoice_number)%[3]s
)%[4]s`, d.autoID, d.timestamp, ordersUser, d.tableOpts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS order_items (
	id %[1]s,
	order_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	product_name VARCHAR(255) NOT NULL,
	quantity INT NOT NULL,
	price_per_unit DECIMAL(10,2) NOT NULL,
	created_at %[2]s NOT NULL%[3]s
)%[4]s`, d.autoID, d.timestamp, itemsOrder, d.tableOpts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS payments (
	id %[1]s,
	order_id BIGINT NULL,
	user_id BIGINT NOT NULL,
	method VARCHAR(32) NOT NULL,
	status VARCHAR(16) NOT NULL,
	amount DECIMAL(10,2) NOT NULL,
	currency VARCHAR(8) NOT NULL,
	provider_reference VARCHAR(191) NOT NULL,
	capture_id VARCHAR(191) NOT NULL DEFAULT '',
	payer_email VARCHAR(255) NOT NULL DEFAULT '',
	qr_image %[3]s NULL,
	paid_at %[2]s NULL,
	created_at %[2]s NOT NULL,
	CONSTRAINT uq_payments_reference UNIQUE (method, provider_reference),
	CONSTRAINT uq_payments_order UNIQUE (order_id)
)%[4]s`, d.autoID, d.timestamp, d.largeText, d.tableOpts),
	}

	for _, s := range []string{ordersUserSep, itemsOrderSep} {
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Migrate creates missing tables and indexes. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
