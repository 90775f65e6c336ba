// Package fortunate computes Fortunate numbers: F(n) is the smallest m > 1
// such that p_n# + m is prime, where p_n# is the product of the first n primes.
//
// The search runs candidate ranges in parallel and returns as soon as the
// smallest offset is proven, not merely when some prime has been found.
package fortunate

import (
	"context"
	"sync"
	"time"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/primality"
	"github.com/primorial/fortunate/internal/primorial"
	"github.com/primorial/fortunate/internal/search"
)

// Sentinel errors. Use errors.Is to test for them.
var (
	// ErrInvalidIndex is returned for n == 0 or n above the prime table bound.
	ErrInvalidIndex = errors.New(errors.ErrCategoryValidation, errors.CodeInvalidIndex, "invalid index")

	// ErrOracleFailure is returned when the primality test itself fails.
	ErrOracleFailure = errors.New(errors.ErrCategoryOracle, errors.CodeOracleFailure, "primality oracle failure")

	// ErrWorkerLost is returned when a worker was lost more times than the
	// retry limit allows.
	ErrWorkerLost = errors.New(errors.ErrCategoryWorker, errors.CodeWorkerLost, "worker lost")
)

// DefaultMaxIndex bounds n for FindFortunateNumber.
const DefaultMaxIndex = 100000

// Stats summarizes the work done by a search.
type Stats struct {
	RangesTested      uint64
	CandidatesTested  uint64
	CandidatesSkipped uint64
}

// Result is a proven Fortunate number.
type Result struct {
	N       int
	Offset  uint64
	Elapsed time.Duration
	Workers int
	Stats   Stats
}

// Finder runs searches with a fixed configuration. It is safe for
// concurrent use and caches primorials across calls.
type Finder struct {
	coordinator *search.Coordinator
}

type settings struct {
	maxIndex   int
	prefilter  bool
	basePeriod time.Duration
}

// Option configures a Finder.
type Option func(*settings)

// WithMaxIndex sets the largest accepted n.
func WithMaxIndex(n int) Option {
	return func(s *settings) { s.maxIndex = n }
}

// WithoutPrefilter tests every offset, including those that share a factor
// with the primorial.
func WithoutPrefilter() Option {
	return func(s *settings) { s.prefilter = false }
}

// WithBasePeriod sets the batch sizer's base period; the per-batch target
// duration is the base period divided by the worker count.
func WithBasePeriod(d time.Duration) Option {
	return func(s *settings) { s.basePeriod = d }
}

// NewFinder creates a Finder using workers concurrent testers (workers <= 0
// means one per CPU).
func NewFinder(workers int, opts ...Option) (*Finder, error) {
	s := settings{maxIndex: DefaultMaxIndex, prefilter: true}
	for _, opt := range opts {
		opt(&s)
	}

	provider := primorial.NewProvider(s.maxIndex)
	searchOpts := search.DefaultOptions()
	if workers > 0 {
		searchOpts.Workers = workers
	}
	if s.basePeriod > 0 {
		searchOpts.BasePeriod = s.basePeriod
	}

	var coordOpts []search.CoordinatorOption
	if s.prefilter {
		coordOpts = append(coordOpts, search.WithPrefilter(func(n int) (search.Prefilter, error) {
			return provider.Filter(n)
		}))
	}

	coord, err := search.NewCoordinator(provider, primality.NewMillerRabin(), searchOpts, coordOpts...)
	if err != nil {
		return nil, err
	}
	return &Finder{coordinator: coord}, nil
}

// Find returns F(n).
func (f *Finder) Find(ctx context.Context, n int) (*Result, error) {
	return f.find(ctx, f.coordinator, n)
}

// FindWithWorkers returns F(n) using a different worker count for this
// search only (workers <= 0 keeps the Finder's own).
func (f *Finder) FindWithWorkers(ctx context.Context, n, workers int) (*Result, error) {
	coord := f.coordinator
	if workers > 0 && workers != coord.Options().Workers {
		var err error
		if coord, err = coord.WithWorkers(workers); err != nil {
			return nil, err
		}
	}
	return f.find(ctx, coord, n)
}

func (f *Finder) find(ctx context.Context, coord *search.Coordinator, n int) (*Result, error) {
	out, err := coord.Find(ctx, n)
	if err != nil {
		return nil, err
	}
	return &Result{
		N:       out.Index,
		Offset:  out.Offset,
		Elapsed: out.Elapsed,
		Workers: out.Workers,
		Stats: Stats{
			RangesTested:      out.Stats.RangesTested,
			CandidatesTested:  out.Stats.CandidatesTested,
			CandidatesSkipped: out.Stats.CandidatesSkipped,
		},
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultFinder *Finder
	defaultErr    error
)

// FindFortunateNumber returns F(n) using workers concurrent testers
// (workers <= 0 means one per CPU) and default settings. Primorials are
// cached across calls.
func FindFortunateNumber(ctx context.Context, n, workers int) (*Result, error) {
	defaultOnce.Do(func() {
		defaultFinder, defaultErr = NewFinder(0)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultFinder.FindWithWorkers(ctx, n, workers)
}
