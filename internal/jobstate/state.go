// Package jobstate projects a stream of progress events onto a single job
// view. Apply is pure: it never mutates its input and never performs I/O.
package jobstate

import (
	"time"

	"scrapewatch/internal/export"
	"scrapewatch/internal/progress"
)

// RecentCapacity bounds State.Recent.
const RecentCapacity = 5

// Outcome is the terminal disposition of a job.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ItemSnapshot is the in-flight or just-finished item.
type ItemSnapshot struct {
	Index  int
	Total  int
	URL    string
	Status progress.ItemStatus
	Item   *progress.Item
	Error  string
	Reason string
}

// RecentResult is a completed item stamped with its completion time.
type RecentResult struct {
	Item        progress.Item
	URL         string
	Status      progress.ItemStatus
	CompletedAt time.Time
}

// State is the reducer's view of one job session.
type State struct {
	Status       string
	Phase        string
	CurrentPage  int
	TotalPages   int // 0 until learned
	PagesScraped int

	TotalDiscovered int
	Processed       int
	Successful      int
	Percentage      float64

	CurrentItem *ItemSnapshot
	Recent      []RecentResult

	Terminal bool
	Outcome  Outcome
	Failure  string
	Demo     bool
}

// Effects are side effects requested by a transition; the caller performs them.
type Effects struct {
	Record      *export.Record
	CloseStream bool
}

// New returns the state of a freshly launched session.
func New() State {
	return State{
		CurrentPage: 1,
		Outcome:     OutcomeRunning,
	}
}

// Failed is Processed minus Successful. It folds skipped, timed-out and
// errored items together, so it approximates the upstream failure count.
func (s State) Failed() int {
	if f := s.Processed - s.Successful; f > 0 {
		return f
	}
	return 0
}

// PagePercent is pagination progress in [0,100]. When the total page count
// is not known yet, maxPages (the requested bound) is used instead.
func (s State) PagePercent(maxPages int) float64 {
	den := s.TotalPages
	if den <= 0 {
		den = maxPages
	}
	if den <= 0 {
		return 0
	}
	return clampPercent(float64(s.CurrentPage) / float64(den) * 100)
}

// TotalKnown reports whether urls_found has established the denominator.
func (s State) TotalKnown() bool {
	return s.TotalDiscovered > 0
}

func (s State) clone() State {
	c := s
	if s.CurrentItem != nil {
		ci := *s.CurrentItem
		c.CurrentItem = &ci
	}
	if s.Recent != nil {
		c.Recent = make([]RecentResult, len(s.Recent))
		copy(c.Recent, s.Recent)
	}
	return c
}
