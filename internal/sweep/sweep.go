// Package sweep computes F(n) over a range of indices and publishes a
// markdown report to object storage.
package sweep

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/progress"
	"github.com/primorial/fortunate/internal/service"
	"github.com/primorial/fortunate/internal/storage"
)

// Finder is the part of service.Service a sweep needs.
type Finder interface {
	Find(ctx context.Context, n, workers int) (*service.Result, error)
}

// Row is one line of the report table.
type Row struct {
	Index     int
	Fortunate uint64
	Elapsed   time.Duration
	Cached    bool
}

// Report is a finished sweep.
type Report struct {
	From, To   int
	Rows       []Row
	Total      time.Duration
	ObjectPath string
}

// Average is the mean search time over the rows that were not cached.
func (r *Report) Average() time.Duration {
	var sum time.Duration
	var count int
	for _, row := range r.Rows {
		if !row.Cached {
			sum += row.Elapsed
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / time.Duration(count)
}

// Markdown renders the report.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# F(%d-%d) Sweep\n\n", r.From, r.To)
	fmt.Fprintf(&b, "| **Total time** | **Average** | **Count** |\n")
	fmt.Fprintf(&b, "|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %d |\n\n",
		progress.FormatDuration(r.Total), progress.FormatDuration(r.Average()), len(r.Rows))
	b.WriteString("| n | F(n) | Time | Cached |\n")
	b.WriteString("|---|------|------|--------|\n")
	for _, row := range r.Rows {
		cached := ""
		if row.Cached {
			cached = "yes"
		}
		fmt.Fprintf(&b, "| %d | %d | %s | %s |\n", row.Index, row.Fortunate, progress.FormatDuration(row.Elapsed), cached)
	}
	return b.String()
}

// Runner runs sweeps one index at a time; each search gets the whole worker pool.
type Runner struct {
	finder  Finder
	store   storage.ObjectStorage
	prefix  string
	workers int
}

// NewRunner creates a runner. store may be nil, in which case reports are
// returned but not uploaded.
func NewRunner(finder Finder, store storage.ObjectStorage, prefix string, workers int) *Runner {
	return &Runner{finder: finder, store: store, prefix: prefix, workers: workers}
}

// Run computes F(from) through F(to). A failed search aborts the sweep and
// the rows completed so far are returned with the error.
func (r *Runner) Run(ctx context.Context, from, to int) (*Report, error) {
	if from < 1 || to < from {
		return nil, errors.NewValidationError(errors.CodeInvalidIndex,
			fmt.Sprintf("invalid sweep range %d-%d", from, to))
	}

	report := &Report{From: from, To: to}
	began := time.Now()
	for n := from; n <= to; n++ {
		res, err := r.finder.Find(ctx, n, r.workers)
		if err != nil {
			report.Total = time.Since(began)
			return report, err
		}
		report.Rows = append(report.Rows, Row{
			Index:     n,
			Fortunate: res.Fortunate,
			Elapsed:   res.Elapsed,
			Cached:    res.Cached,
		})
		log.Printf("sweep: F(%d) = %d (%s)", n, res.Fortunate, progress.FormatDuration(res.Elapsed))
	}
	report.Total = time.Since(began)

	if r.store == nil {
		return report, nil
	}
	objectPath := fmt.Sprintf("%ssweep-%d-%d-%s.md", r.prefix, from, to, uuid.New().String()[:8])
	if err := r.store.Put(ctx, objectPath, []byte(report.Markdown()), "text/markdown"); err != nil {
		return report, err
	}
	report.ObjectPath = objectPath
	log.Printf("sweep: report for F(%d-%d) written to %s", from, to, objectPath)
	return report, nil
}

// ParseRange parses "a-b" or a single index "a".
func ParseRange(s string) (int, int, error) {
	invalid := errors.NewValidationError(errors.CodeInvalidIndex, fmt.Sprintf("invalid range %q", s))

	lo, hi, isRange := strings.Cut(s, "-")
	from, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, invalid
	}
	to := from
	if isRange {
		if to, err = strconv.Atoi(hi); err != nil {
			return 0, 0, invalid
		}
	}
	if from < 1 || to < from {
		return 0, 0, invalid
	}
	return from, to, nil
}
