// Package export accumulates scraped listings and writes them as quoted CSV.
package export

import (
	"sync"

	"scrapewatch/internal/progress"
)

// Placeholders for fields the upstream item payload does not always carry.
const (
	DefaultCondition = "Used"
	DefaultLocation  = "Location TBD"
)

// Record is one exportable listing. Records are never mutated after creation.
type Record struct {
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Condition string `json:"condition"`
	Location  string `json:"location"`
	Price     string `json:"price"`
	URL       string `json:"url"`
}

// FromItem derives a Record from a completed item and its listing URL.
func FromItem(it progress.Item, url string) Record {
	cond := it.Condition
	if cond == "" {
		cond = DefaultCondition
	}
	loc := it.Location
	if loc == "" {
		loc = DefaultLocation
	}
	return Record{
		Brand:     it.Brand,
		Model:     it.Model,
		Condition: cond,
		Location:  loc,
		Price:     it.Price,
		URL:       url,
	}
}

// Accumulator holds records in insertion order. Duplicates are kept.
type Accumulator struct {
	mu      sync.Mutex
	records []Record
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds r at the end.
func (a *Accumulator) Append(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
}

// Records returns a copy of the accumulated records.
func (a *Accumulator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Reset drops every record; used when a new session begins.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
}
