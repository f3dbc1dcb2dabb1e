package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

type UserRepo struct {
	db *sql.DB
}

// Create inserts a new user and returns it with server-assigned fields.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, name, role string) (User, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(email)), passwordHash, name, role, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, xerrors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, xerrors.Wrap(err, "user insert id")
	}
	return r.ByID(ctx, id)
}

func (r *UserRepo) ByID(ctx context.Context, id int64) (User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at, updated_at
		 FROM users WHERE id = ?`, id))
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at, updated_at
		 FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
}

// List returns all users ordered by creation, admin dashboard view.
func (r *UserRepo) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at, updated_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, xerrors.Wrap(err, "list users")
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan user")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateProfile changes the display name and bumps updated_at.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, name string) (User, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id)
	if err != nil {
		return User{}, xerrors.Wrap(err, "update user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return User{}, ErrNotFound
	}
	return r.ByID(ctx, id)
}

func (r *UserRepo) scanOne(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, xerrors.Wrap(err, "scan user")
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
