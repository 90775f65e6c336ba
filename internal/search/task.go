// Package search implements the parallel Fortunate-number candidate search:
// the batch tester, the frontier tracker, the adaptive batch sizer, and the
// coordinator that drives a worker pool until the smallest offset is proven.
package search

import "time"

// SearchTask is one dispatched window [Start, Start+Length) of offsets.
type SearchTask struct {
	Index  int
	Start  uint64
	Length uint64

	// Attempt counts re-dispatches of this range after a lost worker.
	Attempt int
}

// End returns the exclusive end of the window.
func (t SearchTask) End() uint64 {
	return t.Start + t.Length
}

// SearchResult is the outcome of testing one SearchTask.
type SearchResult struct {
	Start  uint64
	Length uint64

	// Found is the smallest prime-yielding offset in the window; valid only
	// when HasFound is set.
	Found    uint64
	HasFound bool

	// TestedEnd is the exclusive end of the prefix that was actually tested.
	// It equals Found+1 on a hit and Start+Length on an exhausted window.
	TestedEnd uint64

	// Cancelled is set when the tester stopped before exhausting the window.
	Cancelled bool

	// Candidates counts oracle calls; Skipped counts offsets the prefilter
	// proved composite.
	Candidates uint64
	Skipped    uint64

	Elapsed time.Duration
	Attempt int

	// Err is set when the window could not be tested at all.
	Err error
}

// End returns the exclusive end of the dispatched window.
func (r SearchResult) End() uint64 {
	return r.Start + r.Length
}

// Exhausted reports whether every offset of the window was tested without a hit.
func (r SearchResult) Exhausted() bool {
	return r.Err == nil && !r.Cancelled && !r.HasFound
}

// completedEnd returns the exclusive end of the prefix that is now known to
// contain no prime-yielding offset other than Found.
func (r SearchResult) completedEnd() uint64 {
	switch {
	case r.HasFound:
		return r.Found + 1
	case r.Cancelled:
		return r.TestedEnd
	default:
		return r.End()
	}
}
