package orderform

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertForm(ctx context.Context, form OrderForm) (int64, error)
	InsertLine(ctx context.Context, line Line) (Line, error)
	DeleteLines(ctx context.Context, formID int64) error
	DeletePending(ctx context.Context, id int64) (bool, error)
	CompleteForm(ctx context.Context, id int64) (bool, error)
	UpdateSupplier(ctx context.Context, id, supplierID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetForm returns a form with its lines.
func (r *Repository) GetForm(ctx context.Context, id int64) (OrderForm, error) {
	var form OrderForm
	err := r.pool.QueryRow(ctx, `SELECT id, supplier_id, status, created_at, updated_at FROM order_forms WHERE id=$1`, id).
		Scan(&form.ID, &form.SupplierID, &form.Status, &form.CreatedAt, &form.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderForm{}, ErrFormNotFound
		}
		return OrderForm{}, err
	}
	lines, err := r.getLines(ctx, id)
	if err != nil {
		return OrderForm{}, err
	}
	form.Lines = lines
	return form, nil
}

// ListForms returns forms matching the filter, newest first. Unconsumed
// excludes forms already referenced by a warehouse receipt via NOT EXISTS
// rather than a client-side set difference.
func (r *Repository) ListForms(ctx context.Context, filter ListFilter) ([]OrderForm, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	sql := `SELECT f.id, f.supplier_id, f.status, f.created_at, f.updated_at FROM order_forms f WHERE 1=1`
	args := []any{}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		sql += ` AND f.supplier_id = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		sql += ` AND f.status = $` + itoa(len(args))
	}
	if !filter.Date.IsZero() {
		args = append(args, filter.Date)
		sql += ` AND f.created_at::date = $` + itoa(len(args)) + `::date`
	}
	if filter.Unconsumed {
		sql += ` AND NOT EXISTS (SELECT 1 FROM warehouse_receipts rc WHERE rc.supplier_receipt_id = f.id)`
	}
	args = append(args, limit)
	sql += ` ORDER BY f.created_at DESC LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []OrderForm
	for rows.Next() {
		var form OrderForm
		if err := rows.Scan(&form.ID, &form.SupplierID, &form.Status, &form.CreatedAt, &form.UpdatedAt); err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range forms {
		lines, err := r.getLines(ctx, forms[i].ID)
		if err != nil {
			return nil, err
		}
		forms[i].Lines = lines
	}
	return forms, nil
}

func (r *Repository) getLines(ctx context.Context, formID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_form_id, product_id, unit_id, quantity, input_price FROM order_form_lines WHERE order_form_id=$1 ORDER BY id ASC`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderFormID, &line.ProductID, &line.UnitID, &line.Quantity, &line.InputPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertForm(ctx context.Context, form OrderForm) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_forms (supplier_id, status, created_at, updated_at) VALUES ($1,$2,NOW(),NOW()) RETURNING id`,
		form.SupplierID, string(form.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (Line, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO order_form_lines (order_form_id, product_id, unit_id, quantity, input_price) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		line.OrderFormID, line.ProductID, line.UnitID, line.Quantity, line.InputPrice).Scan(&line.ID)
	return line, err
}

func (r *txRepository) DeleteLines(ctx context.Context, formID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM order_form_lines WHERE order_form_id=$1`, formID)
	return err
}

func (r *txRepository) DeletePending(ctx context.Context, id int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM order_forms WHERE id=$1 AND status=$2`, id, string(StatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteForm is the compare-and-swap PENDING -> COMPLETED transition.
func (r *txRepository) CompleteForm(ctx context.Context, id int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE order_forms SET status=$2, updated_at=NOW() WHERE id=$1 AND status=$3`,
		id, string(StatusCompleted), string(StatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *txRepository) UpdateSupplier(ctx context.Context, id, supplierID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_forms SET supplier_id=$2, updated_at=NOW() WHERE id=$1`, id, supplierID)
	return err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
