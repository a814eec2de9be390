package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Repository persists exchanges in PostgreSQL.
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

const exchangeColumns = `id, order_id, order_item_id, status, old_product_id, old_batch_id, old_quantity, new_product_id, new_batch_id, new_quantity, exchange_value, new_total, additional_payment, user_id, user_name, note, created_at`

const batchColumns = `id, product_id, unit_id, batch_number, input_quantity, output_quantity, date_of_manufacture, expiry_date, input_price, note, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("exchange repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetExchange fetches one exchange by id.
func (r *Repository) GetExchange(ctx context.Context, id int64) (Exchange, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+exchangeColumns+` FROM return_exchanges WHERE id=$1`, id)
	return scanExchange(row)
}

// ListExchanges returns recent exchanges, newest first.
func (r *Repository) ListExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+exchangeColumns+` FROM return_exchanges ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// GetOrder reads an order snapshot without locking; used while quoting.
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (OrderSnapshot, error) {
	var snap OrderSnapshot
	err := r.pool.QueryRow(ctx, `SELECT id, status, created_at FROM orders WHERE id=$1`, orderID).
		Scan(&snap.ID, &snap.Status, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderSnapshot{}, ErrOrderNotFound
	}
	return snap, err
}

// ListOrderItems returns the sold lines of an order.
func (r *Repository) ListOrderItems(ctx context.Context, orderID int64) ([]ItemSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, COALESCE(batch_id, 0), quantity, line_total
FROM order_items WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemSnapshot
	for rows.Next() {
		var it ItemSnapshot
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.BatchID, &it.Quantity, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (OrderSnapshot, error) {
	var snap OrderSnapshot
	err := r.tx.QueryRow(ctx, `SELECT id, status, created_at FROM orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&snap.ID, &snap.Status, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderSnapshot{}, ErrOrderNotFound
	}
	return snap, err
}

func (r *txRepository) GetOrderItem(ctx context.Context, orderID, itemID int64) (ItemSnapshot, error) {
	var item ItemSnapshot
	err := r.tx.QueryRow(ctx, `SELECT id, order_id, product_id, COALESCE(batch_id, 0), quantity, line_total
FROM order_items WHERE id=$1 AND order_id=$2`, itemID, orderID).
		Scan(&item.ID, &item.OrderID, &item.ProductID, &item.BatchID, &item.Quantity, &item.LineTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return ItemSnapshot{}, ErrItemNotFound
	}
	return item, err
}

func (r *txRepository) ExchangeExistsForItem(ctx context.Context, itemID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM return_exchanges WHERE order_item_id=$1)`, itemID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, batchID int64) (ledger.Batch, error) {
	var b ledger.Batch
	err := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_details WHERE id=$1 FOR UPDATE`, batchID).
		Scan(&b.ID, &b.ProductID, &b.UnitID, &b.BatchNumber, &b.InputQuantity, &b.OutputQuantity,
			&b.DateOfManufacture, &b.ExpiryDate, &b.InputPrice, &b.Note, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Batch{}, ledger.ErrBatchNotFound
	}
	return b, err
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

func (r *txRepository) GetProductUnitRatio(ctx context.Context, productID int64) (float64, error) {
	var ratio float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(u.ratio, 1)
FROM products p LEFT JOIN units u ON u.id = p.unit_id
WHERE p.id=$1`, productID).Scan(&ratio)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("product %d %w", productID, shared.ErrNotFound)
	}
	return ratio, err
}

func (r *txRepository) InsertExchange(ctx context.Context, ex Exchange) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO return_exchanges
(order_id, order_item_id, status, old_product_id, old_batch_id, old_quantity, new_product_id, new_batch_id, new_quantity, exchange_value, new_total, additional_payment, user_id, user_name, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW()) RETURNING id`,
		ex.OrderID, ex.OrderItemID, string(ex.Status), ex.OldProductID, ex.OldBatchID, ex.OldQuantity,
		ex.NewProductID, ex.NewBatchID, ex.NewQuantity, ex.ExchangeValue, ex.NewTotal, ex.AdditionalPayment,
		ex.UserID, ex.UserName, ex.Note).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyExchanged
		}
		return 0, err
	}
	return id, nil
}

func scanExchange(row pgx.Row) (Exchange, error) {
	var ex Exchange
	err := row.Scan(&ex.ID, &ex.OrderID, &ex.OrderItemID, &ex.Status, &ex.OldProductID, &ex.OldBatchID, &ex.OldQuantity,
		&ex.NewProductID, &ex.NewBatchID, &ex.NewQuantity, &ex.ExchangeValue, &ex.NewTotal, &ex.AdditionalPayment,
		&ex.UserID, &ex.UserName, &ex.Note, &ex.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Exchange{}, ErrExchangeNotFound
		}
		return Exchange{}, err
	}
	return ex, nil
}
