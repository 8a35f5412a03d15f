package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress is a point-in-time view of a reembedding run.
type Progress struct {
	Done    int
	Failed  int
	Total   int
	Elapsed time.Duration
}

// Rate returns processed entries per second.
func (p Progress) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Done) / p.Elapsed.Seconds()
}

// Remaining estimates the time left at the current rate. It is zero when
// nothing has been processed yet or the run is done.
func (p Progress) Remaining() time.Duration {
	rate := p.Rate()
	if rate == 0 || p.Done >= p.Total {
		return 0
	}
	return time.Duration(float64(p.Total-p.Done) / rate * float64(time.Second))
}

func (p Progress) String() string {
	pct := 0.0
	if p.Total > 0 {
		pct = float64(p.Done) / float64(p.Total) * 100
	}
	s := fmt.Sprintf("Progress: %d/%d (%.1f%%) - %.1f entries/s", p.Done, p.Total, pct, p.Rate())
	if eta := p.Remaining(); eta > 0 {
		s += fmt.Sprintf(" - eta %v", eta.Round(time.Second))
	}
	if p.Failed > 0 {
		s += fmt.Sprintf(" - %d failed", p.Failed)
	}
	return s
}

// ProgressTracker writes a single updating progress line for a run over a
// known number of stale entries. It is safe for concurrent use.
type ProgressTracker struct {
	mu       sync.Mutex
	w        io.Writer
	every    int
	state    Progress
	reported int
	start    time.Time
}

// NewProgressTracker reports to w each time at least every more entries have
// been processed.
func NewProgressTracker(w io.Writer, total, every int) *ProgressTracker {
	return &ProgressTracker{w: w, every: every, state: Progress{Total: total}}
}

// Start resets the counters and starts the clock.
func (t *ProgressTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Now()
	t.state = Progress{Total: t.state.Total}
	t.reported = 0
}

func (t *ProgressTracker) started() bool {
	return !t.start.IsZero()
}

// Record counts a processed batch of done entries, failed of which could not
// be re-embedded. Failed entries count as processed.
func (t *ProgressTracker) Record(done, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started() {
		return
	}
	t.state.Done = min(t.state.Done+done, t.state.Total)
	t.state.Failed += failed
	if t.state.Done-t.reported >= t.every {
		t.print()
		t.reported = t.state.Done
	}
}

// Snapshot returns the current counters.
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.state
	if t.started() {
		p.Elapsed = time.Since(t.start)
	}
	return p
}

// Finish prints the final line. Entries that were never recorded, such as
// those that turned fresh during the run, are counted as done.
func (t *ProgressTracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started() {
		return
	}
	t.state.Done = t.state.Total
	t.print()
	fmt.Fprintln(t.w)
}

func (t *ProgressTracker) print() {
	p := t.state
	p.Elapsed = time.Since(t.start)
	fmt.Fprint(t.w, "\r"+p.String())
}
