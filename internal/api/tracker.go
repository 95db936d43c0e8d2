package api

import (
	"sync"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Status is the JSON document served by /v1/status.
type Status struct {
	Cycles    int              `json:"cycles"`
	LastCycle *monitor.Summary `json:"last_cycle,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	NextRun   *time.Time       `json:"next_run,omitempty"`
}

// Tracker shares cycle progress between the watch loop and the HTTP server.
type Tracker struct {
	mu      sync.RWMutex
	status  Status
	trigger chan struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{trigger: make(chan struct{}, 1)}
}

// Record stores the outcome of a finished cycle.
func (t *Tracker) Record(summary monitor.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Cycles++
	s := summary
	t.status.LastCycle = &s
	t.status.LastError = ""
	if err != nil {
		t.status.LastError = err.Error()
	}
}

// ScheduleNext records when the following cycle is due.
func (t *Tracker) ScheduleNext(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := at.UTC()
	t.status.NextRun = &next
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.status
	if out.LastCycle != nil {
		s := *out.LastCycle
		out.LastCycle = &s
	}
	if out.NextRun != nil {
		n := *out.NextRun
		out.NextRun = &n
	}
	return out
}

// Ready reports whether at least one cycle has completed.
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.Cycles > 0
}

// RequestCycle asks the watch loop to run early. It returns false when a
// request is already pending.
func (t *Tracker) RequestCycle() bool {
	select {
	case t.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Requests delivers early-run requests to the watch loop.
func (t *Tracker) Requests() <-chan struct{} {
	return t.trigger
}
