// Package storage defines the snapshot store contract used by the registry
// and the event log, plus an in-memory implementation. A snapshot is the full
// serialized state of one component, written wholesale under a fixed key.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound is returned when a snapshot key doesn't exist in the store.
var ErrKeyNotFound = errors.New("key not found")

// Store is the key-value snapshot store collaborator injected into the core
// components. Implementations must be safe for concurrent use.
type Store interface {
	// Load retrieves the snapshot stored under key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save overwrites the snapshot stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes the snapshot stored under key.
	// Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Memory implements Store with a mutex-guarded in-memory map.
// Used for tests and for running without durable persistence.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

// Load retrieves a copy of the value stored under key.
func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}

	// Copy so callers can't mutate the stored snapshot.
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Save stores a copy of data under key, overwriting any existing value.
func (m *Memory) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.data[key] = stored

	return nil
}

// Delete removes the value stored under key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}
