// Package progress renders search progress for a terminal.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/primorial/fortunate/internal/search"
)

// Reporter is a search.Observer that writes a single self-overwriting
// progress line once a search has run longer than the delay, and optionally
// one line per completed batch.
type Reporter struct {
	w       io.Writer
	delay   time.Duration
	verbose bool

	mu      sync.Mutex
	lineLen int
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer, delay time.Duration, verbose bool) *Reporter {
	return &Reporter{w: w, delay: delay, verbose: verbose}
}

// SearchStarted implements search.Observer.
func (r *Reporter) SearchStarted(ev search.StartEvent) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "F(%d) : start=%d workers=%d digits=%d\n", ev.Index, ev.StartOffset, ev.Workers, ev.Digits)
}

// BatchCompleted implements search.Observer.
func (r *Reporter) BatchCompleted(ev search.BatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.verbose {
		fmt.Fprintln(r.w, BatchLine(ev))
		return
	}
	if ev.Elapsed < r.delay {
		return
	}
	line := fmt.Sprintf("F(%d) > %d (%s)", ev.Index, ev.Lower, FormatDuration(ev.Elapsed))
	pad := ""
	if len(line) < r.lineLen {
		pad = strings.Repeat(" ", r.lineLen-len(line))
	}
	fmt.Fprintf(r.w, "\r%s%s", line, pad)
	r.lineLen = len(line)
}

// SearchFinished implements search.Observer.
func (r *Reporter) SearchFinished(ev search.FinishEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lineLen > 0 {
		fmt.Fprintf(r.w, "\r%s\r", strings.Repeat(" ", r.lineLen))
		r.lineLen = 0
	}
}

// BatchLine formats one completed batch as
// "F(n) : [lower; best] [start+length] (batch time) (elapsed)", with the
// next batch size appended when the sizer changed it.
func BatchLine(ev search.BatchEvent) string {
	best := "?"
	if ev.HasBest {
		best = fmt.Sprintf("%d", ev.Best)
	}
	res := ev.Result
	line := fmt.Sprintf("F(%d) : [%d; %s] [%d+%d] (%s) (%s)",
		ev.Index, ev.Lower, best, res.Start, res.Length,
		FormatDuration(res.Elapsed), FormatDuration(ev.Elapsed))
	if res.Cancelled {
		line += " cancelled"
	}
	if ev.SizeChanged {
		line += fmt.Sprintf(" next_batch_size=%d", ev.NextBatchSize)
	}
	return line
}

// FormatDuration renders d as milliseconds below one second, seconds below
// one minute, and minutes otherwise.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.2fm", d.Minutes())
	}
}
