// Package store is the sqlite persistence layer: connection setup,
// embedded schema migrations, and one repository per aggregate.
package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var (
	ErrNotFound   = xerrors.New("store: not found")
	ErrEmailTaken = xerrors.New("store: email already registered")
)

type Store struct {
	db *sql.DB

	Users       *UserRepo
	Products    *ProductRepo
	Orders      *OrderRepo
	CreditCards *CreditCardRepo
}

// Open connects to the sqlite database at path, verifies the connection,
// and applies pending migrations. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, xerrors.Wrap(err, "open sqlite")
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent request handlers
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(err, "ping sqlite")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	s.Users = &UserRepo{db: db}
	s.Products = &ProductRepo{db: db}
	s.Orders = &OrderRepo{db: db}
	s.CreditCards = &CreditCardRepo{db: db}
	return s, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return xerrors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return xerrors.Wrap(err, "apply migrations")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Counts is the admin dashboard row-count summary.
type Counts struct {
	Users    int64 `json:"users"`
	Products int64 `json:"products"`
	Orders   int64 `json:"orders"`
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users),
		        (SELECT COUNT(*) FROM products),
		        (SELECT COUNT(*) FROM orders)`)
	if err := row.Scan(&c.Users, &c.Products, &c.Orders); err != nil {
		return Counts{}, xerrors.Wrap(err, "count rows")
	}
	return c, nil
}
