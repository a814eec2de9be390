package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	GetBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error)
	AddOutput(ctx context.Context, id int64, delta float64) error
	CountBatchesForProduct(ctx context.Context, productID int64) (int, error)
	BatchNumberExists(ctx context.Context, number string) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

const batchColumns = `id, product_id, unit_id, batch_number, input_quantity, output_quantity, date_of_manufacture, expiry_date, input_price, note, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListBatches returns batches matching the filter, FIFO ordered.
func (r *Repository) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	sql := `SELECT ` + batchColumns + ` FROM product_details WHERE 1=1`
	args := []any{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		sql += ` AND product_id = $1`
	}
	if filter.BatchNumber != "" {
		args = append(args, filter.BatchNumber)
		sql += ` AND batch_number = $` + itoa(len(args))
	}
	if filter.OnlyInStock {
		sql += ` AND input_quantity > output_quantity`
	}
	args = append(args, limit)
	sql += ` ORDER BY date_of_manufacture ASC NULLS LAST, id ASC LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// GetBatch fetches one batch by id.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_details WHERE id=$1`, id)
	return scanBatch(row)
}

// GetBatchByNumber fetches one batch by its lot code.
func (r *Repository) GetBatchByNumber(ctx context.Context, number string) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_details WHERE batch_number=$1`, number)
	return scanBatch(row)
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO product_details (product_id, unit_id, batch_number, input_quantity, output_quantity, date_of_manufacture, expiry_date, input_price, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		batch.ProductID, nullInt(batch.UnitID), batch.BatchNumber, batch.InputQuantity, batch.OutputQuantity, batch.DateOfManufacture, batch.ExpiryDate, batch.InputPrice, batch.Note).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateBatchNumber
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_details WHERE id=$1 FOR UPDATE`, id)
	return scanBatch(row)
}

func (r *txRepository) GetBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM product_details WHERE product_id=$1 ORDER BY id ASC FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) AddOutput(ctx context.Context, id int64, delta float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE product_details
SET output_quantity = output_quantity + $2, updated_at = NOW()
WHERE id = $1 AND output_quantity + $2 >= 0 AND output_quantity + $2 <= input_quantity`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutputRange
	}
	return nil
}

func (r *txRepository) CountBatchesForProduct(ctx context.Context, productID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM product_details WHERE product_id=$1`, productID).Scan(&count)
	return count, err
}

func (r *txRepository) BatchNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM product_details WHERE batch_number=$1)`, number).Scan(&exists)
	return exists, err
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.ProductID, &b.UnitID, &b.BatchNumber, &b.InputQuantity, &b.OutputQuantity, &b.DateOfManufacture, &b.ExpiryDate, &b.InputPrice, &b.Note, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.UnitID, &b.BatchNumber, &b.InputQuantity, &b.OutputQuantity, &b.DateOfManufacture, &b.ExpiryDate, &b.InputPrice, &b.Note, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
