// Package sqlstore implements the snapshot store on a relational database
// through sqlx. It works against Postgres (pgx driver, schema managed by
// golang-migrate) and SQLite (modernc driver, schema bootstrapped inline).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vadimbarashkov/linkhub/internal/storage"
)

// Store persists snapshots in a single key-value table.
type Store struct {
	db *sqlx.DB
}

// New returns a Store backed by the given database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Bootstrap creates the snapshots table if it doesn't exist. Used for SQLite,
// where the golang-migrate Postgres migrations don't apply.
func (s *Store) Bootstrap(ctx context.Context) error {
	const op = "storage.sqlstore.Store.Bootstrap"
	const ddl = `CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%s: failed to create snapshots table: %w", op, err)
	}

	return nil
}

// Load retrieves the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.sqlstore.Store.Load"
	const query = `SELECT data FROM snapshots WHERE key = $1`

	var data []byte

	if err := s.db.GetContext(ctx, &data, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
		}

		return nil, fmt.Errorf("%s: failed to load snapshot: %w", op, err)
	}

	return data, nil
}

// Save upserts the snapshot stored under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	const op = "storage.sqlstore.Store.Save"
	const query = `INSERT INTO snapshots (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("%s: failed to save snapshot: %w", op, err)
	}

	return nil
}

// Delete removes the snapshot stored under key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "storage.sqlstore.Store.Delete"
	const query = `DELETE FROM snapshots WHERE key = $1`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("%s: failed to delete snapshot: %w", op, err)
	}

	return nil
}
