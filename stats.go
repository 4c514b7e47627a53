package dupefy

import (
	"sync/atomic"
	"time"
)

// Stats accumulates totals across runs for observability. It is not part of
// the clustering contract and is safe for concurrent use.
type Stats struct {
	imagesAnalyzed atomic.Int64
	imagesSkipped  atomic.Int64
	groupsFound    atomic.Int64
	runsCompleted  atomic.Int64
	lastRun        atomic.Int64 // unix nanoseconds
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	ImagesAnalyzed int64     `json:"images_analyzed"`
	ImagesSkipped  int64     `json:"images_skipped"`
	GroupsFound    int64     `json:"groups_found"`
	RunsCompleted  int64     `json:"runs_completed"`
	LastRunAt      time.Time `json:"last_run_at,omitzero"`
}

func (s *Stats) record(r *Result) {
	s.imagesAnalyzed.Add(int64(r.Analyzed))
	s.imagesSkipped.Add(int64(len(r.Skipped)))
	s.groupsFound.Add(int64(len(r.Groups)))
	s.runsCompleted.Add(1)
	s.lastRun.Store(time.Now().UnixNano())
}

// Snapshot returns the current totals.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		ImagesAnalyzed: s.imagesAnalyzed.Load(),
		ImagesSkipped:  s.imagesSkipped.Load(),
		GroupsFound:    s.groupsFound.Load(),
		RunsCompleted:  s.runsCompleted.Load(),
	}
	if ns := s.lastRun.Load(); ns != 0 {
		snap.LastRunAt = time.Unix(0, ns)
	}
	return snap
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.imagesAnalyzed.Store(0)
	s.imagesSkipped.Store(0)
	s.groupsFound.Store(0)
	s.runsCompleted.Store(0)
	s.lastRun.Store(0)
}
