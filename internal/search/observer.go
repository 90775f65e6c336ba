package search

import "time"

// StartEvent is emitted once the primorial and pruning bound are known.
type StartEvent struct {
	RunID       string
	Index       int
	Workers     int
	StartOffset uint64
	Digits      int
}

// BatchEvent is emitted after each result is integrated into the frontier.
type BatchEvent struct {
	RunID  string
	Index  int
	Result SearchResult

	Lower   uint64
	Best    uint64
	HasBest bool

	NextBatchSize uint64
	SizeChanged   bool

	// Elapsed is the time since the search started.
	Elapsed time.Duration
}

// FinishEvent is emitted when a search returns, successfully or not.
type FinishEvent struct {
	RunID string
	Index int

	// State is StateDone on success, otherwise the state the search failed in.
	State State

	Offset  uint64
	Elapsed time.Duration
	Stats   Stats
	Err     error
}

// Observer receives search lifecycle events. Calls for one search come from
// the coordinating goroutine in order; an observer shared between concurrent
// searches must synchronize itself.
type Observer interface {
	SearchStarted(ev StartEvent)
	BatchCompleted(ev BatchEvent)
	SearchFinished(ev FinishEvent)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) SearchStarted(StartEvent)   {}
func (NopObserver) BatchCompleted(BatchEvent)  {}
func (NopObserver) SearchFinished(FinishEvent) {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) SearchStarted(ev StartEvent) {
	for _, o := range m {
		o.SearchStarted(ev)
	}
}

func (m MultiObserver) BatchCompleted(ev BatchEvent) {
	for _, o := range m {
		o.BatchCompleted(ev)
	}
}

func (m MultiObserver) SearchFinished(ev FinishEvent) {
	for _, o := range m {
		o.SearchFinished(ev)
	}
}
