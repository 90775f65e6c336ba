package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/primorial/fortunate/internal/search"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.50m"},
		{2 * time.Hour, "120.00m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestBatchLine(t *testing.T) {
	ev := search.BatchEvent{
		Index: 5,
		Result: search.SearchResult{
			Start:   20,
			Length:  8,
			Elapsed: 3 * time.Millisecond,
		},
		Lower:         24,
		Best:          23,
		HasBest:       true,
		NextBatchSize: 16,
		SizeChanged:   true,
		Elapsed:       1500 * time.Millisecond,
	}
	want := "F(5) : [24; 23] [20+8] (3ms) (1.50s) next_batch_size=16"
	if got := BatchLine(ev); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	ev.HasBest = false
	ev.SizeChanged = false
	want = "F(5) : [24; ?] [20+8] (3ms) (1.50s)"
	if got := BatchLine(ev); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReporter_DelaysProgressLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 2*time.Second, false)

	r.BatchCompleted(search.BatchEvent{Index: 100, Lower: 600, Elapsed: time.Second})
	if buf.Len() != 0 {
		t.Fatalf("expected no output before the delay, got %q", buf.String())
	}

	r.BatchCompleted(search.BatchEvent{Index: 100, Lower: 620, Elapsed: 3 * time.Second})
	if !strings.Contains(buf.String(), "\rF(100) > 620 (3.00s)") {
		t.Fatalf("unexpected progress output %q", buf.String())
	}

	r.SearchFinished(search.FinishEvent{Index: 100, Offset: 641})
	if !strings.HasSuffix(buf.String(), "\r") {
		t.Errorf("expected the progress line to be cleared, got %q", buf.String())
	}
}

func TestReporter_Verbose(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, time.Hour, true)

	r.SearchStarted(search.StartEvent{Index: 5, StartOffset: 13, Workers: 1, Digits: 4})
	r.BatchCompleted(search.BatchEvent{Index: 5, Lower: 14, Result: search.SearchResult{Start: 13, Length: 1}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "F(5) : [14; ?] [13+1]") {
		t.Errorf("unexpected batch line %q", lines[1])
	}
}
