package search

import (
	"fmt"
	"time"

	"github.com/primorial/fortunate/internal/errors"
)

// SizerConfig holds configuration for the adaptive batch sizer.
type SizerConfig struct {
	// BasePeriod divided by Workers is the target duration of one batch (default: 60s).
	BasePeriod time.Duration `json:"base_period" yaml:"base_period"`

	// Workers is the size of the pool the target is shared across.
	Workers int `json:"workers" yaml:"workers"`

	// Tolerance is both the band around the target and the grow/shrink factor (default: 2.0).
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	// Initial is the first batch length (default: 1).
	Initial uint64 `json:"initial" yaml:"initial"`

	// Min is the floor for shrinking (default: 16).
	Min uint64 `json:"min" yaml:"min"`

	// Max caps growth; zero means unbounded.
	Max uint64 `json:"max" yaml:"max"`
}

// DefaultSizerConfig returns the default sizer configuration for a pool of
// the given size.
func DefaultSizerConfig(workers int) SizerConfig {
	return SizerConfig{
		BasePeriod: 60 * time.Second,
		Workers:    workers,
		Tolerance:  2.0,
		Initial:    1,
		Min:        16,
	}
}

// Validate checks the configuration.
func (c SizerConfig) Validate() error {
	switch {
	case c.BasePeriod <= 0:
		return errors.NewValidationError(errors.CodeInvalidConfig, "sizer base period must be positive")
	case c.Workers < 1:
		return errors.NewValidationError(errors.CodeInvalidConfig, "sizer needs at least one worker")
	case c.Tolerance <= 1:
		return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("sizer tolerance must exceed 1, got %g", c.Tolerance))
	case c.Initial < 1 || c.Min < 1:
		return errors.NewValidationError(errors.CodeInvalidConfig, "sizer initial and min sizes must be at least 1")
	case c.Max != 0 && c.Max < c.Min:
		return errors.NewValidationError(errors.CodeInvalidConfig, "sizer max size is below min size")
	}
	return nil
}

// BatchSizer adapts the batch length so that batches take roughly the target
// duration. Its decisions are a pure function of the observation history.
type BatchSizer struct {
	cfg     SizerConfig
	target  time.Duration
	fast    time.Duration
	slow    time.Duration
	current uint64
}

// NewBatchSizer creates a sizer from a validated configuration.
func NewBatchSizer(cfg SizerConfig) (*BatchSizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target := cfg.BasePeriod / time.Duration(cfg.Workers)
	s := &BatchSizer{
		cfg:     cfg,
		target:  target,
		fast:    time.Duration(float64(target) / cfg.Tolerance),
		slow:    time.Duration(float64(target) * cfg.Tolerance),
		current: cfg.Initial,
	}
	if cfg.Max != 0 && s.current > cfg.Max {
		s.current = cfg.Max
	}
	return s, nil
}

// Current returns the length for the next batch.
func (s *BatchSizer) Current() uint64 {
	return s.current
}

// Target returns the per-batch target duration.
func (s *BatchSizer) Target() time.Duration {
	return s.target
}

// OnBatchComplete feeds one exhausted batch and returns the next batch length.
//
// A batch faster than target/T grows the size to length*T unless it was
// dispatched smaller than the current size. A batch slower than target*T
// shrinks it to length/T, never below Min, unless it was dispatched larger
// than the current size.
func (s *BatchSizer) OnBatchComplete(length uint64, elapsed time.Duration) uint64 {
	switch {
	case elapsed < s.fast && length >= s.current:
		next := uint64(float64(length) * s.cfg.Tolerance)
		if next <= length {
			next = length + 1
		}
		if s.cfg.Max != 0 && next > s.cfg.Max {
			next = s.cfg.Max
		}
		if next > s.current {
			s.current = next
		}
	case elapsed > s.slow && length <= s.current:
		next := uint64(float64(length) / s.cfg.Tolerance)
		if next < s.cfg.Min {
			next = s.cfg.Min
		}
		if next < s.current {
			s.current = next
		}
	}
	return s.current
}
