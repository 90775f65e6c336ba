package search

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/primality"
	"github.com/primorial/fortunate/internal/primorial"
)

type failingOracle struct {
	failAt *big.Int
}

func (o failingOracle) IsProbablePrime(v *big.Int, rounds int) (bool, error) {
	if o.failAt == nil || v.Cmp(o.failAt) == 0 {
		return false, fmt.Errorf("arithmetic fault")
	}
	return v.ProbablyPrime(rounds), nil
}

func TestBatchTester_FindsSmallestInWindow(t *testing.T) {
	tester := NewBatchTester(big.NewInt(2310), primality.NewMillerRabin(), 25, 1, nil)

	res := tester.Test(context.Background(), SearchTask{Index: 5, Start: 13, Length: 20})
	if res.Err != nil {
		t.Fatalf("Test failed: %v", res.Err)
	}
	if !res.HasFound || res.Found != 23 {
		t.Fatalf("expected found=23, got found=%d has=%v", res.Found, res.HasFound)
	}
	if res.TestedEnd != 24 {
		t.Errorf("expected tested end 24, got %d", res.TestedEnd)
	}
	if res.Candidates != 11 {
		t.Errorf("expected 11 oracle calls (13..23), got %d", res.Candidates)
	}
}

func TestBatchTester_ExhaustedWindow(t *testing.T) {
	tester := NewBatchTester(big.NewInt(2310), primality.NewMillerRabin(), 25, 1, nil)

	res := tester.Test(context.Background(), SearchTask{Index: 5, Start: 13, Length: 10})
	if res.Err != nil {
		t.Fatalf("Test failed: %v", res.Err)
	}
	if res.HasFound {
		t.Fatalf("offsets 13..22 are all composite, got found=%d", res.Found)
	}
	if !res.Exhausted() || res.TestedEnd != res.End() {
		t.Errorf("expected exhausted window, got tested end %d", res.TestedEnd)
	}
}

func TestBatchTester_Prefilter(t *testing.T) {
	provider := primorial.NewProvider(10)
	filter, err := provider.Filter(5)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	tester := NewBatchTester(big.NewInt(2310), primality.NewMillerRabin(), 25, 1, filter)

	res := tester.Test(context.Background(), SearchTask{Index: 5, Start: 13, Length: 20})
	if !res.HasFound || res.Found != 23 {
		t.Fatalf("expected found=23, got found=%d has=%v", res.Found, res.HasFound)
	}
	// 13, 17, 19, 23 reach the oracle; 14, 15, 16, 18, 20, 21, 22 are skipped.
	if res.Candidates != 4 || res.Skipped != 7 {
		t.Errorf("expected 4 candidates and 7 skipped, got %d and %d", res.Candidates, res.Skipped)
	}
}

func TestBatchTester_CancelledBeforeStart(t *testing.T) {
	tester := NewBatchTester(big.NewInt(2310), primality.NewMillerRabin(), 25, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := tester.Test(ctx, SearchTask{Index: 5, Start: 13, Length: 100})
	if !res.Cancelled {
		t.Fatal("expected cancelled result")
	}
	if res.TestedEnd != 13 || res.Candidates != 0 {
		t.Errorf("cancelled tester must not claim progress, tested end %d, candidates %d", res.TestedEnd, res.Candidates)
	}
	if res.HasFound {
		t.Error("cancelled result must not report a found offset")
	}
}

func TestBatchTester_InvalidTask(t *testing.T) {
	tester := NewBatchTester(big.NewInt(2310), primality.NewMillerRabin(), 25, 1, nil)

	tests := []SearchTask{
		{Start: 0, Length: 5},
		{Start: 1, Length: 5},
		{Start: 13, Length: 0},
	}
	for _, task := range tests {
		res := tester.Test(context.Background(), task)
		if errors.GetCode(res.Err) != errors.CodeInvalidTask {
			t.Errorf("task %+v: expected INVALID_TASK, got %v", task, res.Err)
		}
	}
}

func TestBatchTester_OracleFailure(t *testing.T) {
	oracle := failingOracle{failAt: big.NewInt(2310 + 17)}
	tester := NewBatchTester(big.NewInt(2310), oracle, 25, 1, nil)

	res := tester.Test(context.Background(), SearchTask{Index: 5, Start: 13, Length: 20})
	if errors.GetCode(res.Err) != errors.CodeOracleFailure {
		t.Fatalf("expected ORACLE_FAILURE, got %v", res.Err)
	}
	if res.TestedEnd != 17 {
		t.Errorf("expected tested end 17, got %d", res.TestedEnd)
	}
}
