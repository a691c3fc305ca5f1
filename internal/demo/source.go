// Package demo replays a short scripted job so the client stays usable
// when the backend cannot be reached.
package demo

import (
	"context"
	"fmt"
	"time"

	"scrapewatch/internal/progress"
)

// DefaultStep is the pause between scripted batches.
const DefaultStep = time.Second

// Listings are the scripted results, in delivery order.
var Listings = []struct {
	URL  string
	Item progress.Item
}{
	{
		URL: "https://www.equipmenttrader.com/listing/2019-JLG-450AJ-5033688861",
		Item: progress.Item{
			Brand: "JLG", Model: "450AJ", Price: "$36,950", Year: "2019",
			Condition: "Used", Location: "Nashville, TN",
		},
	},
	{
		URL: "https://www.equipmenttrader.com/listing/2012-JLG-E450AJ-5033801611",
		Item: progress.Item{
			Brand: "JLG", Model: "E450AJ", Price: "$22,900", Year: "2012",
			Condition: "Used", Location: "State College, PA",
		},
	},
}

// Source emits the scripted job through the same callback a live stream uses.
type Source struct {
	apiURL string
	step   time.Duration
	now    func() time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithStep sets the pause between batches. Zero emits everything at once.
func WithStep(d time.Duration) Option {
	return func(s *Source) {
		if d >= 0 {
			s.step = d
		}
	}
}

// WithClock sets the source of arrival timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// New returns a Source. apiURL only appears in the opening notice.
func New(apiURL string, opts ...Option) *Source {
	s := &Source{apiURL: apiURL, step: DefaultStep, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Script returns the batches emitted by Run, one per step.
func (s *Source) Script() [][]progress.Event {
	total := len(Listings)
	batches := [][]progress.Event{{
		progress.Notice{Text: fmt.Sprintf("Backend not available (%s) - using demo data", s.apiURL), Demo: true},
		progress.URLsFound{TotalURLs: total, PagesScraped: 1},
	}}
	for i, l := range Listings {
		item := l.Item
		done := i + 1
		batch := []progress.Event{
			progress.ScrapingItem{
				CurrentIndex: done,
				TotalCount:   total,
				URL:          l.URL,
				Status:       progress.ItemCompleted,
				Item:         &item,
			},
			progress.OverallProgress{
				Percentage: float64(done) / float64(total) * 100,
				Completed:  done,
				Total:      total,
				Successful: done,
			},
		}
		if done == total {
			batch = append(batch, progress.Completed{TotalScraped: total, TotalProcessed: total})
		}
		batches = append(batches, batch)
	}
	return batches
}

// Run emits the script, pausing between batches. It returns ctx.Err() if
// cancelled before the final batch.
func (s *Source) Run(ctx context.Context, emit func(progress.Envelope)) error {
	for i, batch := range s.Script() {
		if i > 0 && s.step > 0 {
			t := time.NewTimer(s.step)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ev := range batch {
			emit(progress.Wrap(ev, s.now()))
		}
	}
	return nil
}
