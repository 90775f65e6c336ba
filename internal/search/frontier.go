package search

import (
	"fmt"
	"sort"
)

// Range is a half-open offset interval [Start, End).
type Range struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (r Range) overlaps(start, end uint64) bool {
	return start < r.End && r.Start < end
}

// Frontier tracks which offset ranges are proven composite, which are being
// tested, and the best candidate found so far. It is owned by a single
// coordinating goroutine and is not safe for concurrent use.
//
// Every offset in [2, lower) is proven composite. Ranges completed above
// lower are kept keyed by start until the gap below them closes.
type Frontier struct {
	lower   uint64
	best    uint64
	hasBest bool

	completed map[uint64]uint64
	inFlight  map[uint64]uint64
}

// NewFrontier creates a frontier whose confirmed lower bound starts at
// initialLower. The implicit range [2, initialLower) is treated as completed.
func NewFrontier(initialLower uint64) *Frontier {
	if initialLower < 2 {
		initialLower = 2
	}
	return &Frontier{
		lower:     initialLower,
		completed: make(map[uint64]uint64),
		inFlight:  make(map[uint64]uint64),
	}
}

// RecordDispatch marks [start, start+length) as in flight. The range must not
// overlap the confirmed prefix, a completed range, or another in-flight range.
func (f *Frontier) RecordDispatch(start, length uint64) error {
	end := start + length
	if length == 0 || end < start {
		return fmt.Errorf("frontier: invalid range start=%d length=%d", start, length)
	}
	if start < f.lower {
		return fmt.Errorf("frontier: range [%d, %d) overlaps confirmed prefix below %d", start, end, f.lower)
	}
	for s, e := range f.completed {
		if (Range{s, e}).overlaps(start, end) {
			return fmt.Errorf("frontier: range [%d, %d) overlaps completed [%d, %d)", start, end, s, e)
		}
	}
	for s, e := range f.inFlight {
		if (Range{s, e}).overlaps(start, end) {
			return fmt.Errorf("frontier: range [%d, %d) overlaps in-flight [%d, %d)", start, end, s, e)
		}
	}
	f.inFlight[start] = end
	return nil
}

// RecordResult moves a result's range out of flight. The tested prefix
// becomes completed, the best candidate is lowered if the result found a
// smaller offset, and the confirmed lower bound is advanced through any
// contiguous completed ranges.
func (f *Frontier) RecordResult(res SearchResult) error {
	if res.Err != nil {
		return fmt.Errorf("frontier: cannot record failed result for [%d, %d)", res.Start, res.End())
	}
	end, ok := f.inFlight[res.Start]
	if !ok || end != res.End() {
		return fmt.Errorf("frontier: result for [%d, %d) does not match an in-flight range", res.Start, res.End())
	}
	delete(f.inFlight, res.Start)

	done := res.completedEnd()
	if done > end {
		return fmt.Errorf("frontier: result for [%d, %d) claims progress to %d", res.Start, end, done)
	}
	if done > res.Start {
		f.completed[res.Start] = done
	}

	if res.HasFound && (!f.hasBest || res.Found < f.best) {
		f.best = res.Found
		f.hasBest = true
	}

	f.advance()
	return nil
}

// Evict drops an in-flight range without completing any of it. It returns
// the range's end and whether it was in flight.
func (f *Frontier) Evict(start uint64) (uint64, bool) {
	end, ok := f.inFlight[start]
	if ok {
		delete(f.inFlight, start)
	}
	return end, ok
}

// advance merges completed ranges starting exactly at the lower bound. Each
// completed range is merged at most once.
func (f *Frontier) advance() {
	for {
		end, ok := f.completed[f.lower]
		if !ok {
			return
		}
		delete(f.completed, f.lower)
		f.lower = end
	}
}

// LowerBound returns the confirmed lower bound.
func (f *Frontier) LowerBound() uint64 {
	return f.lower
}

// Best returns the smallest prime-yielding offset found so far.
func (f *Frontier) Best() (uint64, bool) {
	return f.best, f.hasBest
}

// IsResolved reports whether every offset below the best candidate has been
// proven composite.
func (f *Frontier) IsResolved() bool {
	return f.hasBest && f.lower > f.best
}

// Result returns the proven minimal offset. ok is false until IsResolved.
func (f *Frontier) Result() (offset uint64, ok bool) {
	if !f.IsResolved() {
		return 0, false
	}
	return f.best, true
}

// InFlight returns the number of in-flight ranges.
func (f *Frontier) InFlight() int {
	return len(f.inFlight)
}

// Snapshot is a serializable copy of the frontier state.
type Snapshot struct {
	Lower     uint64  `json:"lower"`
	Best      uint64  `json:"best,omitempty"`
	HasBest   bool    `json:"has_best"`
	Completed []Range `json:"completed"`
	InFlight  []Range `json:"in_flight"`
}

// Snapshot returns the current state with ranges sorted by start.
func (f *Frontier) Snapshot() Snapshot {
	return Snapshot{
		Lower:     f.lower,
		Best:      f.best,
		HasBest:   f.hasBest,
		Completed: sortedRanges(f.completed),
		InFlight:  sortedRanges(f.inFlight),
	}
}

func sortedRanges(m map[uint64]uint64) []Range {
	out := make([]Range, 0, len(m))
	for s, e := range m {
		out = append(out, Range{Start: s, End: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
