package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"bgageek-backend/internal/scrapers/bgg"
	"bgageek-backend/internal/ttlcache"

	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	tasks   []Task
	err     error
	scanned map[string]bool
	resets  int
}

func (f *fakeScanner) Reset() {
	f.resets++
	f.scanned = map[string]bool{}
}

func (f *fakeScanner) Scan(ctx context.Context) ([]Task, error) {
	if f.scanned == nil {
		f.scanned = map[string]bool{}
	}
	var fresh []Task
	for _, task := range f.tasks {
		if f.scanned[task.Target] {
			continue
		}
		f.scanned[task.Target] = true
		fresh = append(fresh, task)
	}
	return fresh, f.err
}

func TestResetMappingsAndStats(t *testing.T) {
	h := newHarness(t, time.Millisecond)
	ctx := context.Background()

	for _, id := range []string{"catan", "azul"} {
		require.NoError(t, ttlcache.Set(ctx, h.cache, MappingKey(id), "https://bgg.test/boardgame/"+id))
	}
	require.NoError(t, ttlcache.Set(ctx, h.cache, StatsKey("catan"), bgg.Stats{Score: "7.1"}))
	require.NoError(t, ttlcache.Set(ctx, h.cache, "unrelated", 1))

	// azul has a mapping but no stats, so it is queued
	require.Equal(t, OUTCOME_CACHED, h.scheduler.Enqueue(ctx, task("catan", "Catan")))
	require.Equal(t, OUTCOME_QUEUED, h.scheduler.Enqueue(ctx, task("azul", "Azul")))
	require.Equal(t, OUTCOME_QUEUED, h.scheduler.Enqueue(ctx, task("carcassonne", "Carcassonne")))
	require.Equal(t, int64(3), h.scheduler.Status().Detected)
	require.Equal(t, int64(1), h.scheduler.Status().Processed)

	count, err := h.scheduler.ResetMappings(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Len(t, h.logs.find(SEVERITY_WARN, "Deleted 2 ID records."), 1)

	status := h.scheduler.Status()
	require.Equal(t, int64(0), status.Detected)
	require.Equal(t, int64(0), status.Processed)
	// queued tasks are left alone
	require.Equal(t, 2, status.Pending)

	count, err = h.scheduler.ResetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, h.logs.find(SEVERITY_WARN, "Deleted 1 stats records."), 1)

	count, err = h.scheduler.ResetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	keys, err := h.cache.Keys(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"unrelated"}, keys)
}

func TestForceRescan(t *testing.T) {
	h := newHarness(t, time.Millisecond)
	ctx := context.Background()

	scanner := &fakeScanner{tasks: []Task{task("catan", "Catan"), task("azul", "Azul")}}
	tasks, err := scanner.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	count, err := h.scheduler.ForceRescan(ctx, scanner)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 1, scanner.resets)
	require.Equal(t, 2, h.scheduler.Status().Pending)

	scanner.err = errors.New("page unavailable")
	count, err = h.scheduler.ForceRescan(ctx, scanner)
	require.Error(t, err)
	require.Equal(t, 2, count)
	// both tasks are still queued from the first rescan
	require.Equal(t, 2, h.scheduler.Status().Pending)
	require.Len(t, h.logs.find(SEVERITY_ERROR, "page unavailable"), 1)
}
