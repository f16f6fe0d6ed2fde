// Package kv is the process-wide persistent key-value store the caches are
// built on top of. Values are opaque bytes keyed by string.
package kv

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Store is a synchronous key-value store.
type Store interface {
	// Get returns the value stored at key, found is false if there is none.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key, deleting a key that does not exist is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key in the store.
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mutex  sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string][]byte{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.values[key] = slices.Clone(value)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// KeysWithPrefix lists the keys of store that start with prefix.
func KeysWithPrefix(ctx context.Context, store Store, prefix string) ([]string, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
