// Package observability provides run statistics tracking for searches served by the process.
package observability

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/search"
)

// RunStats records search activity per index. It implements search.Observer
// and is safe for use by concurrent searches.
type RunStats struct {
	mu      sync.RWMutex
	indices map[int]*IndexStats
	active  map[string]*ActiveRun
	window  time.Duration

	batches  int64
	failures int64
}

// IndexStats holds statistics for one index n.
type IndexStats struct {
	Index        int            `json:"n"`
	Runs         int64          `json:"runs"`
	Failures     int64          `json:"failures"`
	LastOffset   uint64         `json:"last_offset,omitempty"`
	LastElapsed  time.Duration  `json:"last_elapsed_ns"`
	Candidates   uint64         `json:"candidates_tested"`
	Skipped      uint64         `json:"candidates_skipped"`
	LastSeen     time.Time      `json:"last_seen"`
	FailureCodes map[string]int `json:"failure_codes,omitempty"` // error code → count
}

// ActiveRun describes a search that has started but not finished.
type ActiveRun struct {
	RunID     string    `json:"run_id"`
	Index     int       `json:"n"`
	Workers   int       `json:"workers"`
	Lower     uint64    `json:"lower"`
	Best      uint64    `json:"best,omitempty"`
	HasBest   bool      `json:"has_best"`
	BatchSize uint64    `json:"batch_size"`
	Started   time.Time `json:"started"`
}

// Snapshot is a point-in-time copy of all statistics.
type Snapshot struct {
	Active   []ActiveRun  `json:"active"`
	Indices  []IndexStats `json:"indices"`
	Batches  int64        `json:"batches"`
	Failures int64        `json:"failures"`
}

// NewRunStats creates a new tracker.
// window: time duration for pruning idle index entries (e.g., 24 hours)
func NewRunStats(window time.Duration) *RunStats {
	return &RunStats{
		indices: make(map[int]*IndexStats),
		active:  make(map[string]*ActiveRun),
		window:  window,
	}
}

// SearchStarted implements search.Observer.
func (s *RunStats) SearchStarted(ev search.StartEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[ev.RunID] = &ActiveRun{
		RunID:   ev.RunID,
		Index:   ev.Index,
		Workers: ev.Workers,
		Lower:   ev.StartOffset,
		Started: time.Now(),
	}
}

// BatchCompleted implements search.Observer.
func (s *RunStats) BatchCompleted(ev search.BatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	if run, ok := s.active[ev.RunID]; ok {
		run.Lower = ev.Lower
		run.Best = ev.Best
		run.HasBest = ev.HasBest
		run.BatchSize = ev.NextBatchSize
	}
}

// SearchFinished implements search.Observer.
func (s *RunStats) SearchFinished(ev search.FinishEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, ev.RunID)

	stats, exists := s.indices[ev.Index]
	if !exists {
		stats = &IndexStats{
			Index:        ev.Index,
			FailureCodes: make(map[string]int),
		}
		s.indices[ev.Index] = stats
	}

	stats.Runs++
	stats.LastSeen = time.Now()
	stats.Candidates += ev.Stats.CandidatesTested
	stats.Skipped += ev.Stats.CandidatesSkipped
	if ev.Err != nil {
		stats.Failures++
		stats.FailureCodes[errorCode(ev.Err)]++
		s.failures++
		return
	}
	stats.LastOffset = ev.Offset
	stats.LastElapsed = ev.Elapsed
}

// Active returns the running searches ordered by start time.
func (s *RunStats) Active() []ActiveRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]ActiveRun, 0, len(s.active))
	for _, r := range s.active {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Started.Before(runs[j].Started)
	})
	return runs
}

// GetTopIndices returns the top N indices by run count.
// Returns a copy of the stats sorted by runs (descending).
func (s *RunStats) GetTopIndices(n int) []IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.indices) == 0 {
		return []IndexStats{}
	}

	stats := make([]IndexStats, 0, len(s.indices))
	for _, st := range s.indices {
		stats = append(stats, copyIndexStats(st))
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Runs != stats[j].Runs {
			return stats[i].Runs > stats[j].Runs
		}
		return stats[i].Index < stats[j].Index
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Snapshot returns a copy of everything tracked.
func (s *RunStats) Snapshot() Snapshot {
	active := s.Active()
	indices := s.GetTopIndices(math.MaxInt)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Active:   active,
		Indices:  indices,
		Batches:  s.batches,
		Failures: s.failures,
	}
}

// Prune removes index entries where time.Since(LastSeen) > window.
// Active runs are never pruned.
func (s *RunStats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for idx, st := range s.indices {
		if st.LastSeen.Before(threshold) {
			delete(s.indices, idx)
		}
	}
}

func copyIndexStats(st *IndexStats) IndexStats {
	cp := *st
	cp.FailureCodes = make(map[string]int, len(st.FailureCodes))
	for code, count := range st.FailureCodes {
		cp.FailureCodes[code] = count
	}
	return cp
}

func errorCode(err error) string {
	if code := errors.GetCode(err); code != "" {
		return code
	}
	return errors.CodeUnexpected
}
