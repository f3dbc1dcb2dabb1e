package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

type OrderRepo struct {
	db *sql.DB
}

// Create inserts an order and its items in one transaction. The order ID
// is generated here so callers get it back immediately.
func (r *OrderRepo) Create(ctx context.Context, o Order) (Order, error) {
	if len(o.Items) == 0 {
		return Order{}, xerrors.New("order has no items")
	}

	o.ID = uuid.NewString()
	now := time.Now().UTC()
	if o.Status == "" {
		o.Status = OrderPending
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, xerrors.Wrap(err, "begin order tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, email, status, total_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Email, o.Status, o.TotalCents, now, now)
	if err != nil {
		return Order{}, xerrors.Wrap(err, "insert order")
	}

	for i := range o.Items {
		item := &o.Items[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_cents)
			 VALUES (?, ?, ?, ?)`,
			o.ID, item.ProductID, item.Quantity, item.PriceCents)
		if err != nil {
			return Order{}, xerrors.Wrap(err, "insert order item")
		}
		item.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return Order{}, xerrors.Wrap(err, "commit order")
	}

	o.CreatedAt = now
	o.UpdatedAt = now
	return o, nil
}

func (r *OrderRepo) ByID(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, status, total_cents, created_at, updated_at
		 FROM orders WHERE id = ?`, id).
		Scan(&o.ID, &o.UserID, &o.Email, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, xerrors.Wrap(err, "scan order")
	}

	items, err := r.itemsFor(ctx, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

// ByUser returns a user's orders, newest first, items included.
func (r *OrderRepo) ByUser(ctx context.Context, userID int64) ([]Order, error) {
	return r.query(ctx,
		`SELECT id, user_id, email, status, total_cents, created_at, updated_at
		 FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// List returns every order, newest first, admin dashboard view.
func (r *OrderRepo) List(ctx context.Context) ([]Order, error) {
	return r.query(ctx,
		`SELECT id, user_id, email, status, total_cents, created_at, updated_at
		 FROM orders ORDER BY created_at DESC`)
}

// UpdatedSince returns orders for a user modified at or after t.
func (r *OrderRepo) UpdatedSince(ctx context.Context, userID int64, t time.Time) ([]Order, error) {
	return r.query(ctx,
		`SELECT id, user_id, email, status, total_cents, created_at, updated_at
		 FROM orders WHERE user_id = ? AND updated_at >= ? ORDER BY updated_at`, userID, t.UTC())
}

// SetStatus transitions an order and bumps updated_at.
func (r *OrderRepo) SetStatus(ctx context.Context, id, status string) (Order, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return Order{}, xerrors.Wrap(err, "update order status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Order{}, ErrNotFound
	}
	return r.ByID(ctx, id)
}

func (r *OrderRepo) query(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Email, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.itemsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *OrderRepo) itemsFor(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, quantity, price_cents
		 FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query order items")
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.PriceCents); err != nil {
			return nil, xerrors.Wrap(err, "scan order item")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
