// Package monitor defines core types shared across the change-detection engine.
package monitor

import (
	"sync"
	"time"
)

// Outcome is the terminal per-cycle state of a single watched URL.
type Outcome string

// Outcome values reported per URL.
const (
	OutcomeFirstSeen Outcome = "first_seen"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
	OutcomeFailed    Outcome = "failed"
)

// WatchTarget is one URL from the input list plus the group label in force when it was read.
type WatchTarget struct {
	URL   string `json:"url"`
	Group string `json:"group,omitempty"`
}

// PageSnapshot is the normalized view of a page captured during one cycle.
type PageSnapshot struct {
	NormalizedText    string
	StructuredExtract string
	Fingerprint       string
	CapturedAt        time.Time
}

// WatchRecord is the persisted baseline for one URL.
type WatchRecord struct {
	Fingerprint       string
	NormalizedText    string
	StructuredExtract string
	LastCheckedAt     time.Time
}

// Seen reports whether the record carries a usable baseline fingerprint.
func (r WatchRecord) Seen() bool {
	return r.Fingerprint != ""
}

// RecordFromSnapshot builds the record that replaces a URL's baseline after a successful fetch.
func RecordFromSnapshot(s PageSnapshot) WatchRecord {
	return WatchRecord{
		Fingerprint:       s.Fingerprint,
		NormalizedText:    s.NormalizedText,
		StructuredExtract: s.StructuredExtract,
		LastCheckedAt:     s.CapturedAt,
	}
}

// State maps a URL to its persisted record.
type State map[string]WatchRecord

// Clone returns a shallow copy safe to mutate independently.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ChangeEvent describes a detected content change for one URL.
type ChangeEvent struct {
	Target             WatchTarget
	Diff               string
	PreviousExtract    string
	CurrentExtract     string
	ArchiveLocator     string
	PreviousCheckedAt  time.Time
	CurrentFingerprint string
}

// Failure is a one-line classification of a URL that could not be processed.
type Failure struct {
	Target WatchTarget
	Kind   FetchErrorKind
	Detail string
}

// Summary is a human readable classification, e.g. "Timeout" or "HTTP 503".
func (f Failure) Summary() string {
	if f.Detail == "" {
		return f.Kind.String()
	}
	return f.Detail
}

// CycleReport aggregates every change and failure of one pass.
// Appends are safe for concurrent use.
type CycleReport struct {
	mu       sync.Mutex
	changes  []indexed[ChangeEvent]
	failures []indexed[Failure]
}

type indexed[T any] struct {
	index int
	item  T
}

// AddChange records a change observed for the URL at the given input index.
func (r *CycleReport) AddChange(index int, ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, indexed[ChangeEvent]{index: index, item: ev})
}

// AddFailure records a failure observed for the URL at the given input index.
func (r *CycleReport) AddFailure(index int, f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, indexed[Failure]{index: index, item: f})
}

// Changes returns the change events ordered by input index.
func (r *CycleReport) Changes() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedItems(r.changes)
}

// Failures returns the failures ordered by input index.
func (r *CycleReport) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedItems(r.failures)
}

// HasChanges reports whether a notification is due.
func (r *CycleReport) HasChanges() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes) > 0
}

// Summary holds the counts returned to the caller once a cycle completes.
type Summary struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	FirstSeen  int       `json:"first_seen"`
	Unchanged  int       `json:"unchanged"`
	Changed    int       `json:"changed"`
	Failed     int       `json:"failed"`
	Notified   bool      `json:"notified"`
	NotifyErr  string    `json:"notify_error,omitempty"`
}
