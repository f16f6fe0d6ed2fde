package pipeline

import (
	"context"
	"fmt"
)

const report_controls_rescan = "controls.rescan"

func (s *Scheduler) resetByPrefix(ctx context.Context, prefix, kind string) (int, error) {
	count, err := s.cache.DeleteByPrefix(ctx, prefix)
	if err != nil {
		s.log.Log(fmt.Sprintf("Failed to delete %s records: %s", kind, err.Error()), SEVERITY_ERROR)
		return count, err
	}
	s.log.Log(fmt.Sprintf("Deleted %d %s records.", count, kind), SEVERITY_WARN)

	s.mutex.Lock()
	s.detected = 0
	s.processed = 0
	s.mutex.Unlock()

	return count, nil
}

// ResetMappings forgets every name to catalog url mapping.
func (s *Scheduler) ResetMappings(ctx context.Context) (int, error) {
	return s.resetByPrefix(ctx, MAPPING_PREFIX, "ID")
}

// ResetStats forgets every cached statistics record.
func (s *Scheduler) ResetStats(ctx context.Context) (int, error) {
	return s.resetByPrefix(ctx, STATS_PREFIX, "stats")
}

// ForceRescan makes scanner forget what it has seen and enqueues everything
// it finds again. Tasks found before a scan error are still enqueued.
func (s *Scheduler) ForceRescan(ctx context.Context, scanner Scanner) (int, error) {
	scanner.Reset()
	s.log.Log("Rescanning...", SEVERITY_INFO)

	tasks, err := scanner.Scan(ctx)
	if err != nil {
		s.tel.ReportWarning(report_controls_rescan, err)
		s.log.Log(fmt.Sprintf("Scan failed: %s", err.Error()), SEVERITY_ERROR)
	}
	for _, task := range tasks {
		s.Enqueue(ctx, task)
	}
	return len(tasks), err
}
