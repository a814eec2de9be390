package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const orderColumns = `id, user_id, user_name, customer_name, status, total, payment_method, payment_status, customer_payment, note, created_at`

const batchColumns = `id, product_id, unit_id, batch_number, input_quantity, output_quantity, date_of_manufacture, expiry_date, input_price, note, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetOrder fetches one order with items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	order.Items, err = r.getItems(ctx, order.ID)
	return order, err
}

// ListOrders returns orders matching the filter, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		sql += ` AND status = $1`
	}
	if !filter.Date.IsZero() {
		args = append(args, filter.Date)
		sql += fmt.Sprintf(` AND created_at::date = $%d::date`, len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// RevenueByDay aggregates completed orders per calendar day.
func (r *Repository) RevenueByDay(ctx context.Context, from, to time.Time) ([]RevenuePoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.created_at::date AS day,
		       COUNT(DISTINCT o.id),
		       COALESCE(SUM(i.line_total), 0),
		       COUNT(i.id) FILTER (WHERE i.discounted),
		       COUNT(i.id)
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE o.status = 'COMPLETED' AND o.created_at::date BETWEEN $1::date AND $2::date
		GROUP BY day
		ORDER BY day ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RevenuePoint
	for rows.Next() {
		var p RevenuePoint
		if err := rows.Scan(&p.Date, &p.Orders, &p.Revenue, &p.DiscountedLines, &p.Lines); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) getItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, COALESCE(batch_id, 0), quantity, unit_price, discounted, line_total
		FROM order_items WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.BatchID, &it.Quantity, &it.UnitPrice, &it.Discounted, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (user_id, user_name, customer_name, status, total, payment_method, payment_status, customer_payment, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		order.UserID, order.UserName, order.CustomerName, string(order.Status), order.Total,
		order.PaymentMethod, order.PaymentStatus, order.CustomerPayment, order.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, batch_id, quantity, unit_price, discounted, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		item.OrderID, item.ProductID, nullInt(item.BatchID), item.Quantity, item.UnitPrice, item.Discounted, item.LineTotal).Scan(&id)
	return id, err
}

func (r *txRepository) GetBatchesForUpdate(ctx context.Context, productID int64) ([]ledger.Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM product_details WHERE product_id=$1 ORDER BY id ASC FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []ledger.Batch
	for rows.Next() {
		var b ledger.Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.UnitID, &b.BatchNumber, &b.InputQuantity, &b.OutputQuantity,
			&b.DateOfManufacture, &b.ExpiryDate, &b.InputPrice, &b.Note, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *txRepository) GetBatchIDByNumber(ctx context.Context, number string) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM product_details WHERE batch_number=$1`, number).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownBatch
	}
	return id, err
}

func (r *txRepository) AddOutput(ctx context.Context, batchID int64, delta float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE product_details
SET output_quantity = output_quantity + $2, updated_at = NOW()
WHERE id = $1 AND output_quantity + $2 >= 0 AND output_quantity + $2 <= input_quantity`, batchID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrOutputRange
	}
	return nil
}

func (r *txRepository) GetProductOutputPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT output_price FROM products WHERE id=$1`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("product %d %w", productID, shared.ErrNotFound)
	}
	return price, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.UserName, &o.CustomerName, &status, &o.Total, &o.PaymentMethod, &o.PaymentStatus, &o.CustomerPayment, &o.Note, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
