package search

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/primorial/fortunate/internal/errors"
)

// PrimalityOracle answers probable-primality queries.
type PrimalityOracle interface {
	IsProbablePrime(v *big.Int, rounds int) (bool, error)
}

// Prefilter recognizes offsets whose candidate is trivially composite.
type Prefilter interface {
	SharesFactor(offset uint64) bool
}

// Tester tests one window of offsets.
type Tester interface {
	Test(ctx context.Context, task SearchTask) SearchResult
}

// BatchTester walks a window of offsets in increasing order and stops at the
// first prime-yielding one. The primorial is shared read-only between
// testers; each tester owns its scratch integers, so a BatchTester must not
// be used by more than one goroutine at a time.
type BatchTester struct {
	primorial  *big.Int
	oracle     PrimalityOracle
	rounds     int
	checkEvery uint64
	filter     Prefilter

	candidate *big.Int
	offset    *big.Int
}

// NewBatchTester creates a tester. checkEvery is the number of offsets
// between cancellation checks; filter may be nil.
func NewBatchTester(primorial *big.Int, oracle PrimalityOracle, rounds, checkEvery int, filter Prefilter) *BatchTester {
	if checkEvery < 1 {
		checkEvery = 1
	}
	return &BatchTester{
		primorial:  primorial,
		oracle:     oracle,
		rounds:     rounds,
		checkEvery: uint64(checkEvery),
		filter:     filter,
		candidate:  new(big.Int),
		offset:     new(big.Int),
	}
}

// Test implements Tester. Cancellation is cooperative: ctx is polled every
// checkEvery offsets and the untested remainder is reported through
// TestedEnd, never as tested.
func (bt *BatchTester) Test(ctx context.Context, task SearchTask) SearchResult {
	began := time.Now()
	res := SearchResult{
		Start:     task.Start,
		Length:    task.Length,
		TestedEnd: task.Start,
		Attempt:   task.Attempt,
	}

	end := task.End()
	if task.Start < 2 || task.Length < 1 || end < task.Start {
		res.Err = errors.NewValidationError(errors.CodeInvalidTask,
			fmt.Sprintf("invalid window start=%d length=%d", task.Start, task.Length))
		return res
	}

	for k := task.Start; k < end; k++ {
		if (k-task.Start)%bt.checkEvery == 0 && ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		if bt.filter != nil && bt.filter.SharesFactor(k) {
			res.Skipped++
			res.TestedEnd = k + 1
			continue
		}

		bt.candidate.Add(bt.primorial, bt.offset.SetUint64(k))
		prime, err := bt.oracle.IsProbablePrime(bt.candidate, bt.rounds)
		if err != nil {
			if errors.GetCode(err) != errors.CodeOracleFailure {
				err = errors.NewOracleFailure(fmt.Sprintf("primality test failed at offset %d", k), err)
			}
			res.Err = err
			break
		}
		res.Candidates++
		res.TestedEnd = k + 1

		if prime {
			res.Found = k
			res.HasFound = true
			break
		}
	}

	res.Elapsed = time.Since(began)
	return res
}
