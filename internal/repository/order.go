package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/order"
)

const (
	nextOrderSequenceSQL = `SELECT nextval('order_number_seq')`

	// Consumes one use of the total budget. The row lock also serializes
	// concurrent redemptions of the same coupon until commit.
	consumeCouponSQL = `UPDATE coupons SET usage_limit_total = usage_limit_total - 1
		WHERE id = $1 AND usage_limit_total > 0`

	consumeCustomerUsageSQL = `INSERT INTO coupon_usages (coupon_id, customer_id, used)
		SELECT id, $2, 1 FROM coupons WHERE id = $1 AND usage_limit_per_customer > 0
		ON CONFLICT (coupon_id, customer_id) DO UPDATE SET used = coupon_usages.used + 1
		WHERE coupon_usages.used < (SELECT usage_limit_per_customer FROM coupons WHERE id = $1)`

	orderColumns = `id, number, customer_id, first_name, last_name, email, phone,
		coupon_id, coupon_code, subtotal, discount, delivery_charge, vat_rate, vat, total,
		status, note, outlet_id, order_type, payment_method, transaction_id, channel, customer_ip,
		delivery_address, city, area, district, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

	selectOrderSQL = `SELECT id, number, customer_id, first_name, last_name, email, phone,
		COALESCE(coupon_id, ''), coupon_code, subtotal, discount, delivery_charge, vat_rate, vat, total,
		status, note, COALESCE(outlet_id, ''), order_type, payment_method, transaction_id, channel, customer_ip,
		delivery_address, city, area, district, created_at, updated_at
		FROM orders`

	getOrderSQL = selectOrderSQL + ` WHERE id = $1 OR number = $1`

	listOrdersSQL = selectOrderSQL + ` WHERE $1 = '' OR customer_id = $1
		ORDER BY created_at DESC, number DESC LIMIT $2 OFFSET $3`

	listOrderLinesSQL = `SELECT order_id, product_id, name, sku, image, regular_price, sale_price, unit_price, quantity, line_total
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`

	getOrderLinesSQL = `SELECT product_id, name, sku, image, regular_price, sale_price, unit_price, quantity, line_total
		FROM order_lines WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 OR number = $1 RETURNING id`
	updateOrderNoteSQL   = `UPDATE orders SET note = $2, updated_at = now() WHERE id = $1 OR number = $1 RETURNING id`
	updateOrderOutletSQL = `UPDATE orders SET outlet_id = $2, updated_at = now() WHERE id = $1 OR number = $1 RETURNING id`

	customerSummarySQL = `SELECT count(*), COALESCE(avg(total), 0) FROM orders WHERE customer_id = $1`
)

var orderLineColumns = []string{
	"order_id", "position", "product_id", "name", "sku", "image",
	"regular_price", "sale_price", "unit_price", "quantity", "line_total",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NextSequence returns the next order number sequence value.
func (r *OrderRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, nextOrderSequenceSQL).Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocating order sequence: %w", err)
	}
	return seq, nil
}

// Create persists the order and its lines. When red is set, the coupon's
// remaining total and the customer's usage are consumed in the same
// transaction; if either is exhausted nothing is written.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, red *coupon.Redemption) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if red != nil {
			if err := consumeCoupon(ctx, tx, *red); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Number, o.CustomerID, o.FirstName, o.LastName, o.Email, o.Phone,
			nullIfEmpty(o.CouponID), o.CouponCode,
			o.Subtotal, o.Discount, o.DeliveryCharge, o.VATRate, o.VAT, o.Total,
			string(o.Status), o.Note, nullIfEmpty(o.OutletID),
			string(o.Type), string(o.PaymentMethod), o.TransactionID, string(o.Channel), o.CustomerIP,
			o.DeliveryAddress, o.City, o.Area, o.District, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}

		rows := make([][]any, len(o.Lines))
		for i, l := range o.Lines {
			rows[i] = []any{
				o.ID, i, l.ProductID, l.Name, l.SKU, l.Image,
				l.RegularPrice, l.SalePrice, l.UnitPrice, l.Quantity, l.LineTotal,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_lines"}, orderLineColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("creating lines of order %q: %w", o.Number, err)
		}
		return nil
	})
}

func consumeCoupon(ctx context.Context, tx pgx.Tx, red coupon.Redemption) error {
	tag, err := tx.Exec(ctx, consumeCouponSQL, red.CouponID)
	if err != nil {
		return fmt.Errorf("consuming coupon %q: %w", red.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(coupon.ErrCouponExhausted, "coupon %s", red.CouponID)
	}

	tag, err = tx.Exec(ctx, consumeCustomerUsageSQL, red.CouponID, red.CustomerID)
	if err != nil {
		return fmt.Errorf("consuming usage of coupon %q: %w", red.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(coupon.ErrCouponExhausted, "coupon %s for customer %s", red.CouponID, red.CustomerID)
	}
	return nil
}

// GetByID returns the order by id or number together with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, getOrderLinesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", id, err)
	}
	if o.Lines, err = pgx.CollectRows(rows, scanOrderLine); err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return r.update(ctx, updateOrderStatusSQL, id, string(status))
}

// UpdateNote sets the order note.
func (r *OrderRepository) UpdateNote(ctx context.Context, id, note string) (*order.Order, error) {
	return r.update(ctx, updateOrderNoteSQL, id, note)
}

// UpdateOutlet assigns the order to an outlet.
func (r *OrderRepository) UpdateOutlet(ctx context.Context, id, outletID string) (*order.Order, error) {
	return r.update(ctx, updateOrderOutletSQL, id, outletID)
}

func (r *OrderRepository) update(ctx context.Context, query, id string, value any) (*order.Order, error) {
	var orderID string
	if err := r.pool.QueryRow(ctx, query, id, value).Scan(&orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	return r.GetByID(ctx, orderID)
}

// CustomerSummary aggregates the customer's orders.
func (r *OrderRepository) CustomerSummary(ctx context.Context, customerID string) (*order.Summary, error) {
	var (
		count int64
		avg   decimal.Decimal
	)
	if err := r.pool.QueryRow(ctx, customerSummarySQL, customerID).Scan(&count, &avg); err != nil {
		return nil, fmt.Errorf("summarizing orders of %q: %w", customerID, err)
	}
	return &order.Summary{CustomerID: customerID, TotalOrders: int(count), AverageOrderValue: avg}, nil
}

// List returns a page of orders with their lines, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	f = f.Normalize()
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.CustomerID, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err = r.pool.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			l       order.Line
			qty     int32
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Name, &l.SKU, &l.Image,
			&l.RegularPrice, &l.SalePrice, &l.UnitPrice, &qty, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		l.Quantity = int(qty)
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                         order.Order
		status, orderType, paymentMethod, channel string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.FirstName, &o.LastName, &o.Email, &o.Phone,
		&o.CouponID, &o.CouponCode, &o.Subtotal, &o.Discount, &o.DeliveryCharge, &o.VATRate, &o.VAT, &o.Total,
		&status, &o.Note, &o.OutletID, &orderType, &paymentMethod, &o.TransactionID, &channel, &o.CustomerIP,
		&o.DeliveryAddress, &o.City, &o.Area, &o.District, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.Type = order.Type(orderType)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.Channel = order.Channel(channel)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l   order.Line
		qty int32
	)
	err := row.Scan(&l.ProductID, &l.Name, &l.SKU, &l.Image, &l.RegularPrice, &l.SalePrice, &l.UnitPrice, &qty, &l.LineTotal)
	l.Quantity = int(qty)
	return l, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
