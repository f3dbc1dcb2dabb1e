package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

type ProductRepo struct {
	db *sql.DB
}

const productCols = `id, name, description, price_cents, image_url, in_stock, created_at, updated_at`

func (r *ProductRepo) Create(ctx context.Context, p Product) (Product, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO products (name, description, price_cents, image_url, in_stock, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.PriceCents, p.ImageURL, p.InStock, now, now)
	if err != nil {
		return Product{}, xerrors.Wrap(err, "insert product")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Product{}, xerrors.Wrap(err, "product insert id")
	}
	return r.ByID(ctx, id)
}

func (r *ProductRepo) ByID(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM products WHERE id = ?`, id))
}

func (r *ProductRepo) List(ctx context.Context) ([]Product, error) {
	return r.query(ctx, `SELECT `+productCols+` FROM products ORDER BY id`)
}

// UpdatedSince returns products modified at or after t, for the sync API.
func (r *ProductRepo) UpdatedSince(ctx context.Context, t time.Time) ([]Product, error) {
	return r.query(ctx,
		`SELECT `+productCols+` FROM products WHERE updated_at >= ? ORDER BY updated_at`, t.UTC())
}

func (r *ProductRepo) Update(ctx context.Context, p Product) (Product, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products
		 SET name = ?, description = ?, price_cents = ?, image_url = ?, in_stock = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, p.PriceCents, p.ImageURL, p.InStock, time.Now().UTC(), p.ID)
	if err != nil {
		return Product{}, xerrors.Wrap(err, "update product")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Product{}, ErrNotFound
	}
	return r.ByID(ctx, p.ID)
}

func (r *ProductRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(err, "delete product")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepo) query(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, "query products")
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.ImageURL, &p.InStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row *sql.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.ImageURL, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, xerrors.Wrap(err, "scan product")
	}
	return p, nil
}
