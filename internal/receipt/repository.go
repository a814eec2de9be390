package receipt

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
)

// Repository persists receipts in PostgreSQL.
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

const receiptColumns = `id, supplier_receipt_id, supplier_id, user_id, user_name, total, note, created_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receipt repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetReceipt fetches a receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM warehouse_receipts WHERE id=$1`, id)
	rc, err := scanReceipt(row)
	if err != nil {
		return Receipt{}, err
	}
	rc.Lines, err = r.getLines(ctx, rc.ID)
	return rc, err
}

// GetReceiptByForm resolves the receipt that consumed an order form.
func (r *Repository) GetReceiptByForm(ctx context.Context, formID int64) (Receipt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM warehouse_receipts WHERE supplier_receipt_id=$1`, formID)
	rc, err := scanReceipt(row)
	if err != nil {
		return Receipt{}, err
	}
	rc.Lines, err = r.getLines(ctx, rc.ID)
	return rc, err
}

// ListReceipts returns receipts matching the filter, newest first.
func (r *Repository) ListReceipts(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sql := `SELECT ` + receiptColumns + ` FROM warehouse_receipts WHERE 1=1`
	args := []any{}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		sql += ` AND supplier_id = $1`
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

	var out []Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *Repository) getLines(ctx context.Context, receiptID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, receipt_id, product_id, unit_id, batch_id, batch_number, quantity, input_price, date_of_manufacture, expiry_date, note
		FROM warehouse_receipt_lines WHERE receipt_id=$1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		err := rows.Scan(&l.ID, &l.ReceiptID, &l.ProductID, &l.UnitID, &l.BatchID, &l.BatchNumber,
			&l.Quantity, &l.InputPrice, &l.DateOfManufacture, &l.ExpiryDate, &l.Note)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetFormForUpdate(ctx context.Context, formID int64) (PendingForm, error) {
	var form PendingForm
	err := r.tx.QueryRow(ctx, `SELECT id, supplier_id, status FROM order_forms WHERE id=$1 FOR UPDATE`, formID).
		Scan(&form.ID, &form.SupplierID, &form.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingForm{}, ErrFormNotPending
	}
	if err != nil {
		return PendingForm{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT product_id, unit_id, quantity, input_price FROM order_form_lines WHERE order_form_id=$1 ORDER BY id ASC`, formID)
	if err != nil {
		return PendingForm{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line FormLine
		if err := rows.Scan(&line.ProductID, &line.UnitID, &line.Quantity, &line.InputPrice); err != nil {
			return PendingForm{}, err
		}
		form.Lines = append(form.Lines, line)
	}
	return form, rows.Err()
}

func (r *txRepository) InsertReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_receipts (supplier_receipt_id, supplier_id, user_id, user_name, total, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		rc.OrderFormID, rc.SupplierID, rc.UserID, rc.UserName, rc.Total, rc.Note).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrFormAlreadyReceived
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_receipt_lines (receipt_id, product_id, unit_id, batch_id, batch_number, quantity, input_price, date_of_manufacture, expiry_date, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		line.ReceiptID, line.ProductID, line.UnitID, line.BatchID, line.BatchNumber,
		line.Quantity, line.InputPrice, line.DateOfManufacture, line.ExpiryDate, line.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertBatch(ctx context.Context, batch ledger.Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO product_details (product_id, unit_id, batch_number, input_quantity, output_quantity, date_of_manufacture, expiry_date, input_price, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		batch.ProductID, batch.UnitID, batch.BatchNumber, batch.InputQuantity, batch.OutputQuantity,
		batch.DateOfManufacture, batch.ExpiryDate, batch.InputPrice, batch.Note).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ledger.ErrDuplicateBatchNumber
		}
		return 0, err
	}
	return id, nil
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

func (r *txRepository) CompleteForm(ctx context.Context, formID int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE order_forms SET status='COMPLETED', updated_at=NOW() WHERE id=$1 AND status='PENDING'`, formID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *txRepository) GetProductInputPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT input_price FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("product %d: %w", productID, ErrLineMismatch)
	}
	return price, err
}

func (r *txRepository) UpdateProductInputPrice(ctx context.Context, productID int64, price decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET input_price=$2, updated_at=NOW() WHERE id=$1`, productID, price)
	return err
}

func (r *txRepository) InsertPriceHistory(ctx context.Context, change PriceChange) error {
	// Output price is untouched at receiving time, so both sides carry
	// the current catalog value.
	_, err := r.tx.Exec(ctx, `INSERT INTO price_history (product_id, old_input_price, new_input_price, old_output_price, new_output_price, changed_at, user_name, note)
SELECT p.id, $2, $3, p.output_price, p.output_price, $4, $5, 'receiving price update' FROM products p WHERE p.id = $1`,
		change.ProductID, change.OldPrice, change.NewPrice, change.ChangedAt, change.UserName)
	return err
}

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.OrderFormID, &rc.SupplierID, &rc.UserID, &rc.UserName, &rc.Total, &rc.Note, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, err
	}
	return rc, nil
}
