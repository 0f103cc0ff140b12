// Package filestore implements the snapshot store on the local filesystem,
// one JSON file per key. It is the single-node analogue of the browser
// local-storage layout the snapshot format originates from.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vadimbarashkov/linkhub/internal/storage"
)

// Store persists snapshots as files under a data directory.
// Keys must be filename-safe; the two keys used by the core are.
type Store struct {
	dir string
}

// New creates the data directory if needed and returns a Store rooted at it.
func New(dir string) (*Store, error) {
	const op = "storage.filestore.New"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create data directory: %w", op, err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads the snapshot file for key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.filestore.Store.Load"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
		}

		return nil, fmt.Errorf("%s: failed to read snapshot file: %w", op, err)
	}

	return data, nil
}

// Save writes the snapshot for key atomically: the data goes to a temporary
// file in the same directory which is then renamed over the target, so a
// crash mid-write never leaves a truncated snapshot behind.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	const op = "storage.filestore.Store.Save"

	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%s: failed to create temp file: %w", op, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: failed to write snapshot: %w", op, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: failed to close temp file: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: failed to replace snapshot file: %w", op, err)
	}

	return nil
}

// Delete removes the snapshot file for key, if it exists.
func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "storage.filestore.Store.Delete"

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: failed to remove snapshot file: %w", op, err)
	}

	return nil
}
