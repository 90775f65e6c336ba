package search

import (
	"fmt"
	"time"

	"github.com/primorial/fortunate/internal/errors"
)

// BatchObservation is one sizer input and the decision it produced.
type BatchObservation struct {
	Length  uint64        `json:"length"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Next    uint64        `json:"next"`
}

// ReplayTrace feeds a recorded trace through a fresh sizer and returns an
// error at the first observation whose decision differs from the recording.
func ReplayTrace(cfg SizerConfig, trace []BatchObservation) error {
	sizer, err := NewBatchSizer(cfg)
	if err != nil {
		return err
	}
	for i, obs := range trace {
		if got := sizer.OnBatchComplete(obs.Length, obs.Elapsed); got != obs.Next {
			return errors.NewLedgerError(errors.CodeTraceCorrupt,
				fmt.Sprintf("trace diverges at observation %d: recorded next=%d, replayed next=%d", i, obs.Next, got), nil)
		}
	}
	return nil
}
