package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

type CreditCardRepo struct {
	db *sql.DB
}

// Save stores the displayable remainder of a card for a user.
func (r *CreditCardRepo) Save(ctx context.Context, c CreditCard) (CreditCard, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO credit_cards (user_id, last4, brand, exp_month, exp_year, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Last4, c.Brand, c.ExpMonth, c.ExpYear, now)
	if err != nil {
		return CreditCard{}, xerrors.Wrap(err, "insert credit card")
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return CreditCard{}, xerrors.Wrap(err, "credit card insert id")
	}
	c.CreatedAt = now
	return c, nil
}

// ByUser lists a user's saved cards, newest first.
func (r *CreditCardRepo) ByUser(ctx context.Context, userID int64) ([]CreditCard, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, last4, brand, exp_month, exp_year, created_at
		 FROM credit_cards WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query credit cards")
	}
	defer rows.Close()

	var out []CreditCard
	for rows.Next() {
		var c CreditCard
		if err := rows.Scan(&c.ID, &c.UserID, &c.Last4, &c.Brand, &c.ExpMonth, &c.ExpYear, &c.CreatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan credit card")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a card, scoped to the owning user so one user cannot
// delete another's card by guessing IDs.
func (r *CreditCardRepo) Delete(ctx context.Context, userID, cardID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM credit_cards WHERE id = ? AND user_id = ?`, cardID, userID)
	if err != nil {
		return xerrors.Wrap(err, "delete credit card")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(err, "credit card rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
