// Package store is the durable autosave cache: one JSON-encoded mapping of
// field name to last known value per namespace key.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zjrosen/activesave/internal/log"
)

// Values maps field names to cached values. Each value is a string, a bool
// or nil.
type Values map[string]any

// Names returns the field names in sorted order.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend is a persistent string-keyed byte store.
type Backend interface {
	// Load returns the stored bytes and whether the key exists.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Store reads and writes namespace mappings over a Backend.
type Store struct {
	backend Backend
}

// New wraps a backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the mapping stored under key. A missing, unreadable or corrupt
// entry yields nil: callers treat that as "nothing cached".
func (s *Store) Get(ctx context.Context, key string) Values {
	data, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		log.ErrorErr(log.CatDB, "cache read failed", err, "key", key)
		return nil
	}
	if !ok {
		return nil
	}
	var values Values
	if err := json.Unmarshal(data, &values); err != nil {
		log.Warn(log.CatDB, "ignoring corrupt cache entry", "key", key, "error", err)
		return nil
	}
	return values
}

// GetField returns one cached value, or nil when the namespace or field is missing.
func (s *Store) GetField(ctx context.Context, key, name string) any {
	values := s.Get(ctx, key)
	if values == nil {
		return nil
	}
	return values[name]
}

// Set replaces the mapping stored under key.
func (s *Store) Set(ctx context.Context, key string, values Values) error {
	if values == nil {
		values = Values{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding namespace %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, data); err != nil {
		return fmt.Errorf("saving namespace %s: %w", key, err)
	}
	return nil
}

// SetField stores one value, keeping the rest of the namespace.
func (s *Store) SetField(ctx context.Context, key, name string, value any) error {
	values := s.Get(ctx, key)
	if values == nil {
		values = Values{}
	}
	values[name] = value
	return s.Set(ctx, key, values)
}

// Remove clears the whole namespace.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("removing namespace %s: %w", key, err)
	}
	return nil
}

// RemoveField deletes one field from the namespace and re-persists the rest.
// Removing from a missing namespace is a no-op.
func (s *Store) RemoveField(ctx context.Context, key, name string) error {
	values := s.Get(ctx, key)
	if values == nil {
		return nil
	}
	if _, ok := values[name]; !ok {
		return nil
	}
	delete(values, name)
	return s.Set(ctx, key, values)
}

// Keys lists every stored namespace key in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
