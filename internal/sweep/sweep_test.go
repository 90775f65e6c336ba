package sweep

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/ledger"
	"github.com/primorial/fortunate/internal/service"
	"github.com/primorial/fortunate/internal/storage"
)

type fakeFinder struct {
	values map[int]uint64
	cached map[int]bool
	calls  []int
}

func (f *fakeFinder) Find(ctx context.Context, n, workers int) (*service.Result, error) {
	f.calls = append(f.calls, n)
	v, ok := f.values[n]
	if !ok {
		return nil, errors.NewInvalidIndex(fmt.Sprintf("no value for %d", n))
	}
	return &service.Result{
		Entry:  &ledger.Entry{Index: n, Fortunate: v, Elapsed: time.Duration(n) * time.Millisecond},
		Cached: f.cached[n],
	}, nil
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{
		values: map[int]uint64{1: 3, 2: 5, 3: 7, 4: 13, 5: 23},
		cached: map[int]bool{2: true},
	}
}

func TestRun_UploadsReport(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	finder := newFakeFinder()
	runner := NewRunner(finder, store, "reports/", 2)

	report, err := runner.Run(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Rows) != 5 || report.Rows[4].Fortunate != 23 {
		t.Fatalf("unexpected rows %+v", report.Rows)
	}
	if len(finder.calls) != 5 || finder.calls[0] != 1 || finder.calls[4] != 5 {
		t.Errorf("expected ascending calls 1..5, got %v", finder.calls)
	}
	if !strings.HasPrefix(report.ObjectPath, "reports/sweep-1-5-") || !strings.HasSuffix(report.ObjectPath, ".md") {
		t.Errorf("unexpected object path %q", report.ObjectPath)
	}

	data, err := store.Get(context.Background(), report.ObjectPath)
	if err != nil {
		t.Fatalf("report not uploaded: %v", err)
	}
	md := string(data)
	for _, want := range []string{
		"# F(1-5) Sweep",
		"| **Total time** | **Average** | **Count** |",
		"| n | F(n) | Time | Cached |",
		"| 2 | 5 | 2ms | yes |",
		"| 5 | 23 | 5ms |  |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestRun_StopsOnError(t *testing.T) {
	finder := newFakeFinder()
	delete(finder.values, 3)
	runner := NewRunner(finder, nil, "", 1)

	report, err := runner.Run(context.Background(), 1, 5)
	if errors.GetCode(err) != errors.CodeInvalidIndex {
		t.Fatalf("expected INVALID_INDEX, got %v", err)
	}
	if len(report.Rows) != 2 {
		t.Errorf("expected the two completed rows, got %+v", report.Rows)
	}
	if report.ObjectPath != "" {
		t.Error("a failed sweep must not be uploaded")
	}
}

func TestRun_InvalidRange(t *testing.T) {
	runner := NewRunner(newFakeFinder(), nil, "", 1)
	if _, err := runner.Run(context.Background(), 4, 2); errors.GetCode(err) != errors.CodeInvalidIndex {
		t.Errorf("expected INVALID_INDEX, got %v", err)
	}
}

func TestReport_AverageIgnoresCached(t *testing.T) {
	r := &Report{Rows: []Row{
		{Index: 1, Elapsed: 10 * time.Millisecond},
		{Index: 2, Elapsed: time.Hour, Cached: true},
		{Index: 3, Elapsed: 30 * time.Millisecond},
	}}
	if got := r.Average(); got != 20*time.Millisecond {
		t.Errorf("expected 20ms, got %s", got)
	}
	if got := (&Report{}).Average(); got != 0 {
		t.Errorf("expected 0 for an empty report, got %s", got)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in       string
		from, to int
		wantErr  bool
	}{
		{"500-510", 500, 510, false},
		{"7", 7, 7, false},
		{"10-3", 0, 0, true},
		{"0-3", 0, 0, true},
		{"a-b", 0, 0, true},
		{"", 0, 0, true},
		{"3-4-9", 0, 0, true},
		{"5-10x", 0, 0, true},
		{"7abc", 0, 0, true},
		{"-5", 0, 0, true},
		{"5-", 0, 0, true},
	}
	for _, tt := range tests {
		from, to, err := ParseRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if from != tt.from || to != tt.to {
			t.Errorf("ParseRange(%q) = %d-%d, want %d-%d", tt.in, from, to, tt.from, tt.to)
		}
	}
}
