// Package pipeline turns detected games into badges: it resolves them to a
// catalog entry, fetches and extracts the entry's statistics and hands them
// to a Renderer, one task at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bgageek-backend/internal/assert"
	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/scrapers/bgg"
	"bgageek-backend/internal/telemetry"
	"bgageek-backend/internal/ttlcache"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("bgageek-backend/internal/pipeline")
var meter = otel.Meter("bgageek-backend/internal/pipeline")

const (
	report_scheduler_cache    = "scheduler.cache"
	report_scheduler_metrics  = "scheduler.metrics"
	report_scheduler_detected = "scheduler.detected"
	report_scheduler_process  = "scheduler.processed"
)

const (
	MAPPING_PREFIX = "bgg_map_"
	STATS_PREFIX   = "bgg_data_"
)

const (
	DefaultDelay      = 3 * time.Second
	DefaultMappingTTL = 365 * 24 * time.Hour
	DefaultStatsTTL   = 3 * 24 * time.Hour

	// below this Jaro-Winkler similarity a catalog name is considered to
	// belong to a different game than the one that was searched for.
	suspiciousSimilarity = 0.7
)

func MappingKey(externalId string) string {
	return MAPPING_PREFIX + externalId
}

func StatsKey(externalId string) string {
	return STATS_PREFIX + externalId
}

type Options struct {
	// Delay is the pause after every processed task.
	Delay      time.Duration
	MappingTTL time.Duration
	StatsTTL   time.Duration
}

// Outcome is what Enqueue did with a task.
type Outcome string

const (
	OUTCOME_CACHED    Outcome = "cached"
	OUTCOME_QUEUED    Outcome = "queued"
	OUTCOME_DUPLICATE Outcome = "duplicate"
)

type Status struct {
	Pending   int   `json:"pending"`
	Busy      bool  `json:"busy"`
	Detected  int64 `json:"detected"`
	Processed int64 `json:"processed"`
}

// Result is a resolved and extracted task.
type Result struct {
	CatalogUrl string
	Stats      bgg.Stats
	Cached     bool
}

var ErrAlreadyRunning = errors.New("pipeline: scheduler is already running")

// Scheduler is a FIFO queue of tasks drained by a single worker, see Run.
type Scheduler struct {
	opts     Options
	cache    ttlcache.Cache
	resolver Resolver
	fetcher  Fetcher
	renderer Renderer
	log      LogSink
	tel      telemetry.API

	wake chan struct{}

	mutex     sync.Mutex
	running   bool
	queue     []Task
	inFlight  string
	busy      bool
	detected  int64
	processed int64
}

func NewScheduler(
	opts Options,
	cache ttlcache.Cache,
	resolver Resolver,
	fetcher Fetcher,
	renderer Renderer,
	log LogSink,
	tel telemetry.API,
) *Scheduler {
	assert.NotNil(resolver)
	assert.NotNil(fetcher)
	assert.NotNil(renderer)
	assert.NotNil(log)
	assert.NotNil(tel)

	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.MappingTTL == 0 {
		opts.MappingTTL = DefaultMappingTTL
	}
	if opts.StatsTTL == 0 {
		opts.StatsTTL = DefaultStatsTTL
	}

	s := &Scheduler{
		opts:     opts,
		cache:    cache,
		resolver: resolver,
		fetcher:  fetcher,
		renderer: renderer,
		log:      log,
		tel:      telemetry.NewScopedAPI("pipeline", tel),
		wake:     make(chan struct{}, 1),
	}
	s.registerGauges()
	return s
}

func (s *Scheduler) registerGauges() {
	gauges := []struct {
		name        string
		description string
		read        func(Status) int64
	}{
		{
			name:        "pipeline.pending",
			description: "The amount of tasks waiting in the queue.",
			read:        func(st Status) int64 { return int64(st.Pending) },
		},
		{
			name:        "pipeline.detected",
			description: "The amount of tasks detected since the last reset.",
			read:        func(st Status) int64 { return st.Detected },
		},
		{
			name:        "pipeline.processed",
			description: "The amount of tasks processed since the last reset.",
			read:        func(st Status) int64 { return st.Processed },
		},
	}
	for _, g := range gauges {
		read := g.read
		_, err := meter.Int64ObservableGauge(
			g.name,
			metric.WithDescription(g.description),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(read(s.Status()))
				return nil
			}),
		)
		if err != nil {
			s.tel.ReportBroken(report_scheduler_metrics, err, g.name)
		}
	}
}

func (s *Scheduler) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Status{
		Pending:   len(s.queue),
		Busy:      s.busy,
		Detected:  s.detected,
		Processed: s.processed,
	}
}

// cached returns the task's mapping and stats when both are fresh.
func (s *Scheduler) cached(ctx context.Context, task Task) (Result, bool) {
	catalogUrl, found, err := ttlcache.Get[string](ctx, s.cache, MappingKey(task.ExternalID), s.opts.MappingTTL)
	if err != nil {
		s.tel.ReportWarning(report_scheduler_cache, err, task.ExternalID)
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}
	stats, found, err := ttlcache.Get[bgg.Stats](ctx, s.cache, StatsKey(task.ExternalID), s.opts.StatsTTL)
	if err != nil {
		s.tel.ReportWarning(report_scheduler_cache, err, task.ExternalID)
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}
	return Result{CatalogUrl: catalogUrl, Stats: stats, Cached: true}, true
}

func prepare(task Task) Task {
	task.DisplayName = CleanTitle(task.RawName)
	if task.DisplayName == "" {
		task.DisplayName = task.ExternalID
	}
	return task
}

// Enqueue renders a task straight from the cache when possible, otherwise
// it queues the task unless one with the same ExternalID is already queued
// or being processed.
func (s *Scheduler) Enqueue(ctx context.Context, task Task) Outcome {
	task = prepare(task)

	result, hit := s.cached(ctx, task)
	if hit {
		s.log.Log(fmt.Sprintf("Cache: %s", task.DisplayName), SEVERITY_SUCCESS)
		s.renderer.Render(ctx, task.Target, result.Stats, result.CatalogUrl, task.Mode)

		s.mutex.Lock()
		s.detected++
		s.processed++
		s.mutex.Unlock()
		return OUTCOME_CACHED
	}

	s.mutex.Lock()
	if s.inFlight == task.ExternalID {
		s.mutex.Unlock()
		return OUTCOME_DUPLICATE
	}
	for _, queued := range s.queue {
		if queued.ExternalID == task.ExternalID {
			s.mutex.Unlock()
			return OUTCOME_DUPLICATE
		}
	}
	s.queue = append(s.queue, task)
	s.detected++
	detected := s.detected
	s.mutex.Unlock()

	s.tel.ReportCount(report_scheduler_detected, detected)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return OUTCOME_QUEUED
}

func (s *Scheduler) next() (Task, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.queue) == 0 {
		s.busy = false
		return Task{}, false
	}
	task := s.queue[0]
	s.queue = s.queue[1:]
	s.busy = true
	s.inFlight = task.ExternalID
	return task, true
}

func (s *Scheduler) finish() {
	s.mutex.Lock()
	s.inFlight = ""
	s.processed++
	processed := s.processed
	s.mutex.Unlock()

	s.tel.ReportCount(report_scheduler_process, processed)
}

// Run drains the queue until ctx is done. Tasks are processed one at a time
// and every task, whether it succeeded or not, is followed by the configured
// delay before the next one is started.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.running = false
		s.busy = false
		s.mutex.Unlock()
	}()

	for {
		task, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		result, err := s.process(ctx, task)
		if err == nil {
			s.renderer.Render(ctx, task.Target, result.Stats, result.CatalogUrl, task.Mode)
		}
		s.finish()

		err = chrono.Sleep(ctx, s.opts.Delay)
		if err != nil {
			return err
		}
	}
}

// Lookup runs a single task right away, bypassing the queue, its delay and
// its counters. The result is cached and rendered like a queued task's.
// A task that misses the cache needs the network, so it fails with
// ErrAlreadyRunning while Run is draining the queue, and Run refuses to
// start while such a lookup is in progress.
func (s *Scheduler) Lookup(ctx context.Context, task Task) (Result, error) {
	task = prepare(task)
	result, hit := s.cached(ctx, task)
	if hit {
		s.log.Log(fmt.Sprintf("Cache: %s", task.DisplayName), SEVERITY_SUCCESS)
	} else {
		s.mutex.Lock()
		if s.running {
			s.mutex.Unlock()
			return Result{}, ErrAlreadyRunning
		}
		s.running = true
		s.mutex.Unlock()

		var err error
		result, err = s.process(ctx, task)

		s.mutex.Lock()
		s.running = false
		s.mutex.Unlock()
		if err != nil {
			return Result{}, err
		}
	}
	s.renderer.Render(ctx, task.Target, result.Stats, result.CatalogUrl, task.Mode)
	return result, nil
}

func (s *Scheduler) process(ctx context.Context, task Task) (Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline:process")
	defer span.End()

	span.SetAttributes(
		attribute.String("external_id", task.ExternalID),
		attribute.String("display_name", task.DisplayName),
	)

	result, err := s.resolveAndExtract(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	return result, nil
}

func (s *Scheduler) resolveAndExtract(ctx context.Context, task Task) (Result, error) {
	s.log.Log(fmt.Sprintf("Processing %s...", task.DisplayName), SEVERITY_INFO)

	mappingKey := MappingKey(task.ExternalID)
	catalogUrl, found, err := ttlcache.Get[string](ctx, s.cache, mappingKey, s.opts.MappingTTL)
	if err != nil {
		s.tel.ReportWarning(report_scheduler_cache, err, task.ExternalID)
	}
	if !found {
		catalogUrl, err = s.resolver.Resolve(ctx, task.DisplayName)
		if err != nil {
			s.log.Log(fmt.Sprintf("Could not find %s on BGG.", task.DisplayName), SEVERITY_ERROR)
			return Result{}, fmt.Errorf("resolve %s: %w", task.DisplayName, err)
		}
		err = ttlcache.Set(ctx, s.cache, mappingKey, catalogUrl)
		if err != nil {
			s.tel.ReportWarning(report_scheduler_cache, err, task.ExternalID)
		}
		s.log.Log(fmt.Sprintf("Mapped %s to %s.", task.DisplayName, catalogUrl), SEVERITY_INFO)
	}

	body, err := s.fetcher.FetchPage(ctx, catalogUrl)
	if err != nil {
		if bgg.IsNotFound(err) {
			// the mapping points at a page that no longer exists
			evictErr := s.cache.Delete(ctx, mappingKey)
			if evictErr != nil {
				s.tel.ReportWarning(report_scheduler_cache, evictErr, task.ExternalID)
			}
			s.log.Log(fmt.Sprintf("Removed stale mapping of %s.", task.DisplayName), SEVERITY_WARN)
		}
		s.log.Log(fmt.Sprintf("Failed to fetch %s: %s", catalogUrl, err.Error()), SEVERITY_ERROR)
		return Result{}, fmt.Errorf("fetch %s: %w", catalogUrl, err)
	}

	stats, err := bgg.Extract(body)
	if err != nil {
		s.log.Log(fmt.Sprintf("Could not read stats of %s.", task.DisplayName), SEVERITY_ERROR)
		return Result{}, fmt.Errorf("extract %s: %w", catalogUrl, err)
	}

	if stats.Name != "" {
		similarity := matchr.JaroWinkler(
			strings.ToLower(stats.Name),
			strings.ToLower(task.DisplayName),
			false,
		)
		if similarity < suspiciousSimilarity {
			s.log.Log(
				fmt.Sprintf("%s was mapped to %s (%s), the mapping may be wrong.", task.DisplayName, stats.Name, catalogUrl),
				SEVERITY_WARN,
			)
		}
	}

	err = ttlcache.Set(ctx, s.cache, StatsKey(task.ExternalID), stats)
	if err != nil {
		s.tel.ReportWarning(report_scheduler_cache, err, task.ExternalID)
	}
	s.log.Log(
		fmt.Sprintf("%s: %s/10, rank %s, weight %s, best with %s.", task.DisplayName, stats.Score, stats.Rank, stats.Weight, stats.BestPlayerCount),
		SEVERITY_SUCCESS,
	)
	return Result{CatalogUrl: catalogUrl, Stats: stats}, nil
}
