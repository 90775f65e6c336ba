package search

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primorial/fortunate/internal/errors"
)

// State is the coordinator's position in a search.
type State int

const (
	StateInitializing State = iota
	StateDispatching
	StateAwaitingResults
	StateResolved
	StateCancelling
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingResults:
		return "awaiting_results"
	case StateResolved:
		return "resolved"
	case StateCancelling:
		return "cancelling"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PrimorialProvider supplies the primorial and the pruning bound.
type PrimorialProvider interface {
	Primorial(n int) (*big.Int, error)
	NthPrime(k int) (uint64, error)
}

// Options holds the search parameters.
type Options struct {
	// Workers is the number of concurrent testers (default: NumCPU).
	Workers int `json:"workers" yaml:"workers"`

	// BasePeriod, Tolerance, and the batch sizes configure the batch sizer.
	BasePeriod       time.Duration `json:"base_period" yaml:"base_period"`
	Tolerance        float64       `json:"tolerance" yaml:"tolerance"`
	InitialBatchSize uint64        `json:"initial_batch_size" yaml:"initial_batch_size"`
	MinBatchSize     uint64        `json:"min_batch_size" yaml:"min_batch_size"`
	MaxBatchSize     uint64        `json:"max_batch_size" yaml:"max_batch_size"`

	// Rounds is passed to the primality oracle (default: 25).
	Rounds int `json:"rounds" yaml:"rounds"`

	// CancelCheckInterval is the number of offsets between cancellation checks (default: 1).
	CancelCheckInterval int `json:"cancel_check_interval" yaml:"cancel_check_interval"`

	// MaxRetries bounds re-dispatches of one range after lost workers (default: 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// DefaultOptions returns the default search options.
func DefaultOptions() Options {
	return Options{
		Workers:             runtime.NumCPU(),
		BasePeriod:          60 * time.Second,
		Tolerance:           2.0,
		InitialBatchSize:    1,
		MinBatchSize:        16,
		Rounds:              25,
		CancelCheckInterval: 1,
		MaxRetries:          3,
	}
}

// SizerConfig derives the batch sizer configuration.
func (o Options) SizerConfig() SizerConfig {
	return SizerConfig{
		BasePeriod: o.BasePeriod,
		Workers:    o.Workers,
		Tolerance:  o.Tolerance,
		Initial:    o.InitialBatchSize,
		Min:        o.MinBatchSize,
		Max:        o.MaxBatchSize,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := o.SizerConfig().Validate(); err != nil {
		return err
	}
	if o.Rounds < 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("rounds must be at least 1, got %d", o.Rounds))
	}
	if o.MaxRetries < 0 {
		return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("max retries must not be negative, got %d", o.MaxRetries))
	}
	return nil
}

// Stats summarizes the work done by one search.
type Stats struct {
	RangesTested      uint64 `json:"ranges_tested"`
	CandidatesTested  uint64 `json:"candidates_tested"`
	CandidatesSkipped uint64 `json:"candidates_skipped"`
	CancelledBatches  uint64 `json:"cancelled_batches"`
	Retries           int    `json:"retries"`
	FinalBatchSize    uint64 `json:"final_batch_size"`
}

// Outcome is the proven result of a search.
type Outcome struct {
	RunID       string
	Index       int
	Offset      uint64
	Elapsed     time.Duration
	Workers     int
	StartOffset uint64
	Primorial   *big.Int
	Stats       Stats
	Trace       []BatchObservation

	drained chan struct{}
}

// Drained is closed once every worker of the search has exited.
func (o *Outcome) Drained() <-chan struct{} {
	return o.drained
}

// TesterFactory builds the tester each worker uses.
type TesterFactory func(primorial *big.Int, filter Prefilter) Tester

// PrefilterFunc returns the prefilter for index n.
type PrefilterFunc func(n int) (Prefilter, error)

// Coordinator runs Fortunate-number searches over a worker pool. A
// Coordinator holds configuration only; each Find call owns its own frontier
// and sizer, so concurrent Find calls are independent.
type Coordinator struct {
	provider  PrimorialProvider
	oracle    PrimalityOracle
	opts      Options
	newTester TesterFactory
	prefilter PrefilterFunc
	observer  Observer
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTesterFactory replaces the default BatchTester.
func WithTesterFactory(f TesterFactory) CoordinatorOption {
	return func(c *Coordinator) {
		c.newTester = f
	}
}

// WithPrefilter enables skipping trivially composite offsets.
func WithPrefilter(f PrefilterFunc) CoordinatorOption {
	return func(c *Coordinator) {
		c.prefilter = f
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(provider PrimorialProvider, oracle PrimalityOracle, opts Options, options ...CoordinatorOption) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		provider: provider,
		oracle:   oracle,
		opts:     opts,
		observer: NopObserver{},
	}
	c.newTester = func(primorial *big.Int, filter Prefilter) Tester {
		return NewBatchTester(primorial, oracle, opts.Rounds, opts.CancelCheckInterval, filter)
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Options returns the coordinator's options.
func (c *Coordinator) Options() Options {
	return c.opts
}

// WithWorkers returns a copy of the coordinator using a different pool size.
func (c *Coordinator) WithWorkers(workers int) (*Coordinator, error) {
	opts := c.opts
	opts.Workers = workers
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cp := *c
	cp.opts = opts
	return &cp, nil
}

// Find returns the smallest m > 1 such that primorial(n)+m is prime.
func (c *Coordinator) Find(ctx context.Context, n int) (*Outcome, error) {
	began := time.Now()
	runID := uuid.New().String()

	r, err := c.initialize(ctx, n, runID, began)
	if err != nil {
		c.observer.SearchFinished(FinishEvent{RunID: runID, Index: n, State: StateInitializing, Elapsed: time.Since(began), Err: err})
		return nil, err
	}

	out, err := r.execute()
	ev := FinishEvent{RunID: runID, Index: n, State: r.state, Elapsed: time.Since(began), Stats: r.stats, Err: err}
	if out != nil {
		ev.Offset = out.Offset
		ev.Elapsed = out.Elapsed
	}
	c.observer.SearchFinished(ev)
	return out, err
}

// run is the per-search state. Everything except the channels and the
// worker group is touched only by the goroutine executing Find.
type run struct {
	c     *Coordinator
	id    string
	n     int
	began time.Time
	state State

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	primorial   *big.Int
	filter      Prefilter
	startOffset uint64

	frontier *Frontier
	sizer    *BatchSizer
	cursor   uint64
	retry    []SearchTask
	cancels  map[uint64]context.CancelFunc

	tasks    chan envelope
	results  chan SearchResult
	wg       sync.WaitGroup
	stopOnce sync.Once
	drained  chan struct{}

	stats Stats
	trace []BatchObservation
}

type envelope struct {
	ctx  context.Context
	task SearchTask
}

func (c *Coordinator) initialize(ctx context.Context, n int, runID string, began time.Time) (*run, error) {
	if n < 1 {
		return nil, errors.NewInvalidIndex(fmt.Sprintf("index must be positive, got %d", n))
	}

	primorial, err := c.provider.Primorial(n)
	if err != nil {
		return nil, providerError(err)
	}
	// Every 2 <= k <= p_n shares a factor with the primorial.
	next, err := c.provider.NthPrime(n + 1)
	if err != nil {
		return nil, providerError(err)
	}

	var filter Prefilter
	if c.prefilter != nil {
		if filter, err = c.prefilter(n); err != nil {
			return nil, providerError(err)
		}
	}

	sizer, err := NewBatchSizer(c.opts.SizerConfig())
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	workers := c.opts.Workers
	return &run{
		c:           c,
		id:          runID,
		n:           n,
		began:       began,
		state:       StateInitializing,
		parent:      ctx,
		ctx:         runCtx,
		cancel:      cancel,
		primorial:   primorial,
		filter:      filter,
		startOffset: next,
		frontier:    NewFrontier(next),
		sizer:       sizer,
		cursor:      next,
		cancels:     make(map[uint64]context.CancelFunc),
		tasks:       make(chan envelope, workers),
		results:     make(chan SearchResult, workers),
		drained:     make(chan struct{}),
	}, nil
}

func providerError(err error) error {
	if errors.GetCategory(err) != "" {
		return err
	}
	return errors.NewInternalError("primorial provider failed", err)
}

func (r *run) execute() (*Outcome, error) {
	workers := r.c.opts.Workers
	digits := len(r.primorial.Text(10))
	log.Printf("search: F(%d) run=%s starting at offset %d with %d workers (%d digits)",
		r.n, r.id[:8], r.startOffset, workers, digits)
	r.c.observer.SearchStarted(StartEvent{
		RunID:       r.id,
		Index:       r.n,
		Workers:     workers,
		StartOffset: r.startOffset,
		Digits:      digits,
	})

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(r.c.newTester(r.primorial, r.filter))
	}

	for !r.frontier.IsResolved() {
		if err := r.parent.Err(); err != nil {
			r.stop()
			return nil, errors.NewSearchError(errors.CodeSearchCancelled, "search cancelled", err)
		}

		r.state = StateDispatching
		if err := r.dispatch(); err != nil {
			r.stop()
			return nil, err
		}
		if r.frontier.InFlight() == 0 {
			r.stop()
			return nil, errors.NewSearchError(errors.CodeSearchStalled,
				fmt.Sprintf("no work in flight at lower bound %d", r.frontier.LowerBound()), nil)
		}

		r.state = StateAwaitingResults
		select {
		case <-r.parent.Done():
			r.stop()
			return nil, errors.NewSearchError(errors.CodeSearchCancelled, "search cancelled", r.parent.Err())
		case res := <-r.results:
			if err := r.handle(res); err != nil {
				r.stop()
				return nil, err
			}
		}
	}

	r.state = StateResolved
	offset, _ := r.frontier.Result()
	elapsed := time.Since(r.began)

	r.state = StateCancelling
	r.stop()
	r.state = StateDone

	r.stats.FinalBatchSize = r.sizer.Current()
	log.Printf("search: F(%d) = %d in %s (%d ranges, %d candidates, %d skipped)",
		r.n, offset, elapsed.Round(time.Millisecond), r.stats.RangesTested, r.stats.CandidatesTested, r.stats.CandidatesSkipped)

	return &Outcome{
		RunID:       r.id,
		Index:       r.n,
		Offset:      offset,
		Elapsed:     elapsed,
		Workers:     workers,
		StartOffset: r.startOffset,
		Primorial:   r.primorial,
		Stats:       r.stats,
		Trace:       r.trace,
		drained:     r.drained,
	}, nil
}

func (r *run) worker(tester Tester) {
	defer r.wg.Done()
	for env := range r.tasks {
		r.results <- r.safeTest(tester, env)
	}
}

// safeTest converts a tester panic into a WORKER_LOST result so the range is
// re-dispatched instead of hanging the search.
func (r *run) safeTest(tester Tester, env envelope) (res SearchResult) {
	defer func() {
		if p := recover(); p != nil {
			res = SearchResult{
				Start:     env.task.Start,
				Length:    env.task.Length,
				TestedEnd: env.task.Start,
				Attempt:   env.task.Attempt,
				Err:       errors.NewWorkerLost(fmt.Sprintf("tester panicked: %v", p), nil),
			}
		}
	}()
	return tester.Test(env.ctx, env.task)
}

// dispatch hands out work until every worker is busy or nothing useful is
// left to test.
func (r *run) dispatch() error {
	for r.frontier.InFlight() < r.c.opts.Workers {
		task, ok := r.nextTask()
		if !ok {
			return nil
		}
		if err := r.frontier.RecordDispatch(task.Start, task.Length); err != nil {
			return errors.NewInternalError("dispatch rejected by frontier", err)
		}
		taskCtx, cancel := context.WithCancel(r.ctx)
		r.cancels[task.Start] = cancel
		r.tasks <- envelope{ctx: taskCtx, task: task}
	}
	return nil
}

// nextTask prefers re-queued ranges over new ones. Nothing at or above the
// best candidate is ever handed out.
func (r *run) nextTask() (SearchTask, bool) {
	best, hasBest := r.frontier.Best()
	for len(r.retry) > 0 {
		task := r.retry[0]
		r.retry = r.retry[1:]
		if hasBest && task.Start >= best {
			continue
		}
		return task, true
	}
	if hasBest && r.cursor >= best {
		return SearchTask{}, false
	}
	task := SearchTask{Index: r.n, Start: r.cursor, Length: r.sizer.Current()}
	r.cursor = task.End()
	return task, true
}

func (r *run) handle(res SearchResult) error {
	if cancel, ok := r.cancels[res.Start]; ok {
		cancel()
		delete(r.cancels, res.Start)
	}

	if res.Err != nil {
		return r.handleFailure(res)
	}

	prevBest, hadBest := r.frontier.Best()
	if err := r.frontier.RecordResult(res); err != nil {
		return errors.NewInternalError("result rejected by frontier", err)
	}

	r.stats.CandidatesTested += res.Candidates
	r.stats.CandidatesSkipped += res.Skipped
	best, hasBest := r.frontier.Best()

	if res.Cancelled {
		// Only windows starting above best are cancelled, so the untested
		// tail lies above best too and is never needed.
		r.stats.CancelledBatches++
	} else {
		r.stats.RangesTested++
	}

	prevSize := r.sizer.Current()
	next := prevSize
	if res.Exhausted() {
		next = r.sizer.OnBatchComplete(res.Length, res.Elapsed)
		r.trace = append(r.trace, BatchObservation{Length: res.Length, Elapsed: res.Elapsed, Next: next})
		if next != prevSize {
			log.Printf("search: F(%d) batch size %d -> %d (%d offsets in %s, target %s)",
				r.n, prevSize, next, res.Length, res.Elapsed.Round(time.Millisecond), r.sizer.Target())
		}
	}

	if hasBest && (!hadBest || best < prevBest) {
		r.cancelDominated(best)
	}

	r.c.observer.BatchCompleted(BatchEvent{
		RunID:         r.id,
		Index:         r.n,
		Result:        res,
		Lower:         r.frontier.LowerBound(),
		Best:          best,
		HasBest:       hasBest,
		NextBatchSize: next,
		SizeChanged:   next != prevSize,
		Elapsed:       time.Since(r.began),
	})
	return nil
}

func (r *run) handleFailure(res SearchResult) error {
	r.frontier.Evict(res.Start)

	if !errors.IsRetryable(res.Err) {
		return res.Err
	}

	attempt := res.Attempt + 1
	if attempt > r.c.opts.MaxRetries {
		return errors.Wrap(errors.ErrCategoryWorker, errors.CodeRetriesExhausted,
			fmt.Sprintf("range [%d, %d) failed %d times", res.Start, res.End(), attempt), res.Err)
	}

	r.stats.Retries++
	log.Printf("[WARN] search: F(%d) worker lost on [%d, %d), re-dispatching (attempt %d/%d): %v",
		r.n, res.Start, res.End(), attempt, r.c.opts.MaxRetries, res.Err)
	r.retry = append(r.retry, SearchTask{
		Index:   r.n,
		Start:   res.Start,
		Length:  res.Length,
		Attempt: attempt,
	})
	return nil
}

// cancelDominated stops every in-flight window that starts above best; none
// of them can hold a smaller answer.
func (r *run) cancelDominated(best uint64) {
	for start, cancel := range r.cancels {
		if start > best {
			cancel()
		}
	}
}

// stop cancels all outstanding work and reclaims the workers in the
// background. Results still in flight are discarded.
func (r *run) stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		close(r.tasks)
		go func() {
			r.wg.Wait()
			close(r.results)
			for range r.results {
			}
			close(r.drained)
		}()
	})
}
