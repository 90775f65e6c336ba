// Package service runs ledger-aware Fortunate number searches for the CLI
// sweep, the HTTP API and the gRPC API.
package service

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/ledger"
	"github.com/primorial/fortunate/internal/observability"
	"github.com/primorial/fortunate/internal/search"
)

// PrimorialSource supplies the primorial a cached ledger entry is checked against.
type PrimorialSource interface {
	Primorial(n int) (*big.Int, error)
}

// Result is a proven F(n), either freshly searched or read back from the ledger.
type Result struct {
	*ledger.Entry
	Cached bool
}

// Service finds Fortunate numbers, consulting the ledger before searching.
type Service struct {
	coordinator *search.Coordinator
	primorials  PrimorialSource
	ledger      ledger.Ledger
	stats       *observability.RunStats

	flight   singleflight.Group
	lifetime context.Context
	stop     context.CancelFunc
}

// New creates a service. ledger and stats may be nil.
func New(coordinator *search.Coordinator, primorials PrimorialSource, l ledger.Ledger, stats *observability.RunStats) *Service {
	lifetime, stop := context.WithCancel(context.Background())
	return &Service{
		coordinator: coordinator,
		primorials:  primorials,
		ledger:      l,
		stats:       stats,
		lifetime:    lifetime,
		stop:        stop,
	}
}

// Find returns F(n). workers <= 0 uses the coordinator's configured pool size.
// Concurrent calls for the same n and pool size share one search. The shared
// search is bound to the service, not to any caller: a caller whose ctx ends
// gets SEARCH_CANCELLED while the search keeps running for the others and is
// recorded when it finishes. Close cancels it.
func (s *Service) Find(ctx context.Context, n, workers int) (*Result, error) {
	if cached, ok := s.lookup(ctx, n); ok {
		return &Result{Entry: cached, Cached: true}, nil
	}
	if workers <= 0 {
		workers = s.coordinator.Options().Workers
	}

	key := strconv.Itoa(n) + "/" + strconv.Itoa(workers)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return s.search(s.lifetime, n, workers)
	})
	select {
	case <-ctx.Done():
		return nil, errors.NewSearchError(errors.CodeSearchCancelled, "search cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &Result{Entry: res.Val.(*ledger.Entry)}, nil
	}
}

// Close cancels every search still running on behalf of the service.
func (s *Service) Close() {
	s.stop()
}

func (s *Service) search(ctx context.Context, n, workers int) (*ledger.Entry, error) {
	coord := s.coordinator
	if workers != coord.Options().Workers {
		var err error
		if coord, err = coord.WithWorkers(workers); err != nil {
			return nil, err
		}
	}

	out, err := coord.Find(ctx, n)
	if err != nil {
		return nil, err
	}

	entry := ledger.EntryFromOutcome(out)
	if s.ledger != nil {
		// The result is proven; a ledger failure only costs a future cache hit.
		if err := s.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
			log.Printf("[WARN] service: failed to record F(%d): %v", n, err)
		}
	}
	return entry, nil
}

// lookup returns the ledger entry for n when its primorial fingerprint still
// matches. Invalid indices fall through so the coordinator reports them.
func (s *Service) lookup(ctx context.Context, n int) (*ledger.Entry, bool) {
	if s.ledger == nil {
		return nil, false
	}
	entry, err := s.ledger.Get(ctx, n)
	if err != nil {
		if errors.GetCode(err) != errors.CodeResultNotFound {
			log.Printf("[WARN] service: ledger lookup for F(%d) failed: %v", n, err)
		}
		return nil, false
	}
	primorial, err := s.primorials.Primorial(n)
	if err != nil {
		return nil, false
	}
	if digest := ledger.Fingerprint(primorial); digest != entry.PrimorialDigest {
		log.Printf("[WARN] service: ledger entry for F(%d) has digest %s, expected %s; searching again",
			n, entry.PrimorialDigest, digest)
		return nil, false
	}
	return entry, true
}

// Results lists ledger entries with from <= n <= to.
func (s *Service) Results(ctx context.Context, from, to int) ([]*ledger.Entry, error) {
	if from < 1 || to < from {
		return nil, errors.NewValidationError(errors.CodeInvalidIndex,
			fmt.Sprintf("invalid range %d-%d", from, to))
	}
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx, from, to)
}

// Replay re-runs the batch sizer over the recorded trace of F(n) under the
// current sizing options and the worker count the search ran with.
func (s *Service) Replay(ctx context.Context, n int) (*ledger.Entry, error) {
	if s.ledger == nil {
		return nil, errors.NewLedgerError(errors.CodeResultNotFound, "ledger is disabled", nil)
	}
	entry, err := s.ledger.Get(ctx, n)
	if err != nil {
		return nil, err
	}
	opts := s.coordinator.Options()
	opts.Workers = entry.Workers
	if err := search.ReplayTrace(opts.SizerConfig(), entry.Trace); err != nil {
		return entry, err
	}
	return entry, nil
}

// Stats returns the run statistics snapshot, or the zero snapshot when no
// recorder is attached.
func (s *Service) Stats() observability.Snapshot {
	if s.stats == nil {
		return observability.Snapshot{}
	}
	return s.stats.Snapshot()
}
