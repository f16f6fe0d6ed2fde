package ttlcache

import (
	"context"
	"testing"
	"time"

	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/kv"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type record struct {
	Score string `json:"score"`
	Rank  string `json:"rank"`
}

func TestGetSetExpiry(t *testing.T) {
	ctx := context.Background()
	clock := chrono.NewManualTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := New(kv.NewMemoryStore(), clock)
	ttl := 72 * time.Hour

	_, found, err := Get[record](ctx, cache, "bgg_data_azul", ttl)
	require.NoError(t, err)
	require.False(t, found)

	original := record{Score: "7.8", Rank: "77"}
	require.NoError(t, Set(ctx, cache, "bgg_data_azul", original))

	testCases := []struct {
		advance time.Duration
		found   bool
	}{
		{advance: 0, found: true},
		{advance: 24 * time.Hour, found: true},
		// exactly at the ttl the entry is still valid
		{advance: 48 * time.Hour, found: true},
		{advance: time.Millisecond, found: false},
		{advance: 24 * time.Hour, found: false},
	}
	for _, test := range testCases {
		clock.Advance(test.advance)
		cached, found, err := Get[record](ctx, cache, "bgg_data_azul", ttl)
		require.NoError(t, err)
		require.Equal(t, test.found, found, "at %s", clock.Now())
		if test.found {
			require.Empty(t, cmp.Diff(original, cached))
		}
	}

	// expired entries are not evicted on read
	keys, err := cache.Keys(ctx, "bgg_data_")
	require.NoError(t, err)
	require.Equal(t, []string{"bgg_data_azul"}, keys)

	// a longer ttl still sees the stale entry
	_, found, err = Get[record](ctx, cache, "bgg_data_azul", 365*24*time.Hour)
	require.NoError(t, err)
	require.True(t, found)
}

func TestEntryFormat(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	clock := chrono.NewManualTime(time.UnixMilli(1700000000123))
	cache := New(store, clock)

	require.NoError(t, Set(ctx, cache, "bgg_map_azul", "https://boardgamegeek.com/boardgame/230802"))

	raw, found, err := store.Get(ctx, "bgg_map_azul")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(
		t,
		`{"storedAtEpochMillis":1700000000123,"value":"https://boardgamegeek.com/boardgame/230802"}`,
		string(raw),
	)
}

func TestCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	cache := New(store, chrono.NewStandardTime())

	require.NoError(t, store.Set(ctx, "bgg_map_broken", []byte("{not json")))
	_, found, err := Get[string](ctx, cache, "bgg_map_broken", time.Hour)
	require.Error(t, err)
	require.False(t, found)
}

func TestDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	cache := New(kv.NewMemoryStore(), chrono.NewStandardTime())

	for _, key := range []string{"bgg_map_a", "bgg_map_b", "bgg_map_c", "bgg_data_a", "bgg_data_b"} {
		require.NoError(t, Set(ctx, cache, key, "v"))
	}

	count, err := cache.DeleteByPrefix(ctx, "bgg_map_")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	count, err = cache.DeleteByPrefix(ctx, "bgg_map_")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	keys, err := cache.Keys(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"bgg_data_a", "bgg_data_b"}, keys)

	require.NoError(t, cache.Delete(ctx, "bgg_data_a"))
	_, found, err := Get[string](ctx, cache, "bgg_data_a", time.Hour)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoredAt(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := chrono.NewManualTime(start)
	cache := New(kv.NewMemoryStore(), clock)

	_, found, err := cache.StoredAt(ctx, "bgg_map_azul")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, Set(ctx, cache, "bgg_map_azul", "https://boardgamegeek.com/boardgame/230802"))
	clock.Advance(time.Hour)

	storedAt, found, err := cache.StoredAt(ctx, "bgg_map_azul")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, start.Equal(storedAt))
}
