package launcher

import (
	"fmt"
	"io"
	"sync"

	"scrapewatch/internal/export"
	"scrapewatch/internal/jobstate"
)

// Reporter receives every applied state in order. Finished is called once
// per session, after the Update carrying the terminal state.
type Reporter interface {
	Update(s jobstate.State)
	Finished(s jobstate.State, records []export.Record)
}

// PlainReporter prints status changes as lines, for non-interactive output.
type PlainReporter struct {
	w    io.Writer
	mu   sync.Mutex
	last string
}

// NewPlainReporter returns a PlainReporter writing to w.
func NewPlainReporter(w io.Writer) *PlainReporter {
	return &PlainReporter{w: w}
}

func (p *PlainReporter) Update(s jobstate.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Status == "" || s.Status == p.last {
		return
	}
	p.last = s.Status
	if s.TotalKnown() {
		fmt.Fprintf(p.w, "[%5.1f%%] %s\n", s.Percentage, s.Status)
		return
	}
	fmt.Fprintf(p.w, "%s\n", s.Status)
}

func (p *PlainReporter) Finished(s jobstate.State, records []export.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Processed: %d  Successful: %d  Failed: ~%d  Listings: %d\n",
		s.Processed, s.Successful, s.Failed(), len(records))
}

// multiReporter fans out to several reporters in order.
type multiReporter []Reporter

func (m multiReporter) Update(s jobstate.State) {
	for _, r := range m {
		r.Update(s)
	}
}

func (m multiReporter) Finished(s jobstate.State, records []export.Record) {
	for _, r := range m {
		r.Finished(s, records)
	}
}
