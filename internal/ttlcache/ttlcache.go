// Package ttlcache adds expiry to a kv.Store. Entries are never evicted in
// the background, whether an entry has expired is decided when it is read.
package ttlcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bgageek-backend/internal/assert"
	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/kv"
)

// Entry is the record persisted for every cached value.
type Entry[T any] struct {
	StoredAtEpochMillis int64 `json:"storedAtEpochMillis"`
	Value               T     `json:"value"`
}

// Valid reports whether the entry is still within ttl at now.
func (e Entry[T]) Valid(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-e.StoredAtEpochMillis <= ttl.Milliseconds()
}

type Cache struct {
	store kv.Store
	time  chrono.TimeAPI
}

func New(store kv.Store, time chrono.TimeAPI) Cache {
	assert.NotNil(store)
	assert.NotNil(time)
	return Cache{store: store, time: time}
}

// Get returns the value at key, found is false if the key is missing or if
// the entry is older than ttl.
func Get[T any](ctx context.Context, c Cache, key string, ttl time.Duration) (value T, found bool, err error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return value, false, err
	}

	var entry Entry[T]
	err = json.Unmarshal(raw, &entry)
	if err != nil {
		return value, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	if !entry.Valid(c.time.Now(), ttl) {
		return value, false, nil
	}
	return entry.Value, true, nil
}

// Set stores value at key, stamped with the current time.
func Set[T any](ctx context.Context, c Cache, key string, value T) error {
	serialized, err := json.Marshal(Entry[T]{
		StoredAtEpochMillis: c.time.Now().UnixMilli(),
		Value:               value,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.store.Set(ctx, key, serialized)
}

func (c Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// DeleteByPrefix removes every key starting with prefix and returns how many
// were removed.
func (c Cache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := kv.KeysWithPrefix(ctx, c.store, prefix)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		err := c.store.Delete(ctx, k)
		if err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// Keys lists the keys starting with prefix, expired or not.
func (c Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	return kv.KeysWithPrefix(ctx, c.store, prefix)
}

// StoredAt returns when the entry at key was written, regardless of ttl.
func (c Cache) StoredAt(ctx context.Context, key string) (time.Time, bool, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	var entry Entry[json.RawMessage]
	err = json.Unmarshal(raw, &entry)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return time.UnixMilli(entry.StoredAtEpochMillis), true, nil
}
