package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements RepositoryPort over postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, code, name, unit_id, input_price, output_price, created_at, updated_at`

func (r *Repository) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (code, name, unit_id, input_price, output_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.Code, p.Name, p.UnitID, p.InputPrice, p.OutputPrice,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET code = $2, name = $3, unit_id = $4, input_price = $5, output_price = $6, updated_at = now()
		WHERE id = $1`,
		p.ID, p.Code, p.Name, p.UnitID, p.InputPrice, p.OutputPrice,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *Repository) ListProducts(ctx context.Context, search string, limit int) ([]Product, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := `SELECT ` + productColumns + ` FROM products`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR code ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(` ORDER BY name ASC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) InsertUnit(ctx context.Context, u Unit) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO units (name, ratio) VALUES ($1, $2) RETURNING id`,
		u.Name, u.Ratio,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert unit: %w", err)
	}
	return id, nil
}

func (r *Repository) GetUnit(ctx context.Context, id int64) (Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx, `SELECT id, name, ratio FROM units WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Ratio)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrUnitNotFound
	}
	if err != nil {
		return Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (r *Repository) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, ratio FROM units ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Ratio); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) InsertSupplier(ctx context.Context, s Supplier) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (name, phone, address) VALUES ($1, $2, $3) RETURNING id`,
		s.Name, s.Phone, s.Address,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert supplier: %w", err)
	}
	return id, nil
}

func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, address FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Phone, &s.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("get supplier: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, address FROM suppliers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.Address); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) InsertPriceHistory(ctx context.Context, ph PriceHistory) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO price_history
			(product_id, old_input_price, new_input_price, old_output_price, new_output_price, changed_at, user_name, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		ph.ProductID, ph.OldInputPrice, ph.NewInputPrice, ph.OldOutputPrice, ph.NewOutputPrice,
		ph.ChangedAt, ph.UserName, ph.Note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert price history: %w", err)
	}
	return id, nil
}

func (r *Repository) ListPriceHistory(ctx context.Context, productID int64, limit int) ([]PriceHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, old_input_price, new_input_price, old_output_price, new_output_price, changed_at, user_name, note
		FROM price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2`,
		productID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()

	var out []PriceHistory
	for rows.Next() {
		var ph PriceHistory
		err := rows.Scan(&ph.ID, &ph.ProductID, &ph.OldInputPrice, &ph.NewInputPrice,
			&ph.OldOutputPrice, &ph.NewOutputPrice, &ph.ChangedAt, &ph.UserName, &ph.Note)
		if err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.UnitID, &p.InputPrice, &p.OutputPrice, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}
