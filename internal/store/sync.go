package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

// TouchSync records syncedAt as the user's acknowledged sync checkpoint,
// replacing any earlier one.
func (s *Store) TouchSync(ctx context.Context, userID int64, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (user_id, synced_at) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET synced_at = excluded.synced_at`,
		userID, syncedAt.UTC())
	if err != nil {
		return xerrors.Wrap(err, "upsert sync state")
	}
	return nil
}

// LastSynced returns the user's acknowledged checkpoint, or ErrNotFound if
// the user has never acknowledged a sync.
func (s *Store) LastSynced(ctx context.Context, userID int64) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT synced_at FROM sync_state WHERE user_id = ?`, userID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, xerrors.Wrap(err, "query sync state")
	}
	return t, nil
}
