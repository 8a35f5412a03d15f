package ingestion

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScopeReport counts outcomes for one scope of a run.
type ScopeReport struct {
	Scope     string
	StartPage int  // Page the run started from; above 1 when resumed
	Pages     int  // Pages fully processed during this run
	Ingested  int
	Updated   int
	Skipped   int
	Failed    int
	Completed bool   // Whether the scope has no pages left
	Error     string // Why the scope stopped early, if it did
}

// Report summarizes an ingestion run.
type Report struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Elapsed   time.Duration
	Ingested  int
	Updated   int
	Skipped   int
	Failed    int
	// Failures maps the source ID of each failed item to the reason.
	Failures map[string]string
	Scopes   map[string]*ScopeReport
}

func (r *Report) String() string {
	return fmt.Sprintf("run %s: ingested=%d updated=%d skipped=%d failed=%d in %s",
		r.RunID, r.Ingested, r.Updated, r.Skipped, r.Failed, r.Elapsed.Round(time.Millisecond))
}

// outcome is the result of processing one item.
type outcome int

const (
	outcomeIngested outcome = iota
	outcomeUpdated
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeIngested:
		return "ingested"
	case outcomeUpdated:
		return "updated"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// tally accumulates a Report from concurrent workers.
type tally struct {
	mu     sync.Mutex
	report Report
}

func newTally() *tally {
	return &tally{report: Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Failures:  make(map[string]string),
		Scopes:    make(map[string]*ScopeReport),
	}}
}

func (t *tally) scope(name string) *ScopeReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	sr, ok := t.report.Scopes[name]
	if !ok {
		sr = &ScopeReport{Scope: name}
		t.report.Scopes[name] = sr
	}
	return sr
}

func (t *tally) record(scope, sourceID string, o outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sr := t.report.Scopes[scope]
	switch o {
	case outcomeIngested:
		t.report.Ingested++
		sr.Ingested++
	case outcomeUpdated:
		t.report.Updated++
		sr.Updated++
	case outcomeSkipped:
		t.report.Skipped++
		sr.Skipped++
	case outcomeFailed:
		t.report.Failed++
		sr.Failed++
		t.report.Failures[sourceID] = err.Error()
	}
}

func (t *tally) update(scope string, fn func(*ScopeReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.report.Scopes[scope])
}

// snapshot returns a copy of the report with Elapsed set.
func (t *tally) snapshot() *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.report
	r.Elapsed = time.Since(r.StartedAt)
	r.Failures = maps.Clone(t.report.Failures)
	r.Scopes = make(map[string]*ScopeReport, len(t.report.Scopes))
	for k, v := range t.report.Scopes {
		sr := *v
		r.Scopes[k] = &sr
	}
	return &r
}
