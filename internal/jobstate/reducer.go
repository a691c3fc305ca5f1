package jobstate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"scrapewatch/internal/export"
	"scrapewatch/internal/progress"
)

// Apply folds one event into s. Terminal states are returned unchanged.
func Apply(s State, env progress.Envelope) (State, Effects) {
	if s.Terminal || env.Event == nil {
		return s, Effects{}
	}
	next := s.clone()
	var eff Effects

	switch ev := env.Event.(type) {
	case progress.Connected:
		next.Status = "Connected to progress stream"
	case progress.Notice:
		applyNotice(&next, ev)
	case progress.Phase:
		next.Phase = ev.Message
		next.Status = ev.Message
	case progress.Pagination:
		applyPagination(&next, ev)
	case progress.PageScraped:
		next.PagesScraped = max(next.PagesScraped, ev.CurrentPage)
		next.Status = fmt.Sprintf("%s (Total: %d)", ev.Message, ev.TotalListingsSoFar)
	case progress.URLsFound:
		applyURLsFound(&next, ev)
	case progress.ScrapingItem:
		eff.Record = applyScrapingItem(&next, ev, env.ReceivedAt)
	case progress.OverallProgress:
		applyOverall(&next, ev)
	case progress.Completed:
		applyCompleted(&next, ev)
		eff.CloseStream = true
	case progress.Error:
		applyError(&next, ev.Text())
		eff.CloseStream = true
	case progress.Heartbeat:
		return s, Effects{}
	default:
		// Unknown tags leave the state alone; the caller logs them.
		return s, Effects{}
	}

	enforceInvariants(&next)
	return next, eff
}

// Fail moves s to a terminal failure with msg as the status. It is used
// for client-side failures that have no server event (lost connection,
// rejected start).
func Fail(s State, msg string) State {
	if s.Terminal {
		return s
	}
	next := s.clone()
	applyError(&next, msg)
	return next
}

func applyNotice(s *State, ev progress.Notice) {
	if ev.Text != "" {
		s.Status = ev.Text
	}
	if ev.Demo {
		s.Demo = true
	}
}

func applyPagination(s *State, ev progress.Pagination) {
	page := ev.CurrentPage
	if page <= 0 {
		page = 1
	}
	s.CurrentPage = page
	if ev.MaxPages > 0 {
		s.TotalPages = ev.MaxPages
	}
	switch {
	case ev.URL != "":
		s.Status = fmt.Sprintf("%s (%s)", ev.Message, ev.URL)
	case strings.Contains(ev.Message, "No results found"):
		// Reads as final but the job keeps running until completed arrives.
		s.Status = "Finished: " + ev.Message
	default:
		s.Status = ev.Message
	}
}

func applyURLsFound(s *State, ev progress.URLsFound) {
	s.TotalDiscovered = max(s.TotalDiscovered, ev.TotalURLs)
	pages := ev.PagesScraped
	if pages <= 0 {
		pages = 1
	}
	s.PagesScraped = max(s.PagesScraped, pages)
	s.Status = fmt.Sprintf("Found %d listings across %d pages", ev.TotalURLs, ev.PagesScraped)
}

func applyScrapingItem(s *State, ev progress.ScrapingItem, at time.Time) *export.Record {
	s.CurrentItem = &ItemSnapshot{
		Index:  ev.CurrentIndex,
		Total:  ev.TotalCount,
		URL:    ev.URL,
		Status: ev.Status,
		Item:   ev.Item,
		Error:  ev.Error,
		Reason: ev.Reason,
	}
	if ev.Status != progress.ItemCompleted || ev.Item == nil {
		return nil
	}

	recent := make([]RecentResult, 0, RecentCapacity)
	recent = append(recent, RecentResult{
		Item:        *ev.Item,
		URL:         ev.URL,
		Status:      ev.Status,
		CompletedAt: at,
	})
	for _, r := range s.Recent {
		if len(recent) == RecentCapacity {
			break
		}
		recent = append(recent, r)
	}
	s.Recent = recent

	rec := export.FromItem(*ev.Item, ev.URL)
	return &rec
}

func applyOverall(s *State, ev progress.OverallProgress) {
	s.Percentage = max(s.Percentage, clampPercent(ev.Percentage))
	s.Processed = max(s.Processed, ev.Completed)
	s.Successful = max(s.Successful, ev.Successful)
	s.Status = fmt.Sprintf("Progress: %d/%d (%d successful)", ev.Completed, ev.Total, ev.Successful)
}

func applyCompleted(s *State, ev progress.Completed) {
	s.Terminal = true
	s.Outcome = OutcomeSucceeded
	s.Percentage = 100
	s.Processed = max(s.Processed, ev.TotalProcessed)
	s.Successful = max(s.Successful, ev.TotalScraped)
	if s.Demo {
		s.Status = "Demo data loaded successfully! (backend not available - demo mode)"
		return
	}
	s.Status = fmt.Sprintf("Scraping completed! Successfully scraped %d out of %d listings.", ev.TotalScraped, ev.TotalProcessed)
}

func applyError(s *State, msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	s.Terminal = true
	s.Outcome = OutcomeFailed
	s.Failure = msg
	s.Status = "Error: " + msg
}

func enforceInvariants(s *State) {
	s.Percentage = clampPercent(s.Percentage)
	if s.Successful > s.Processed {
		s.Successful = s.Processed
	}
	if s.TotalKnown() && s.Processed > s.TotalDiscovered {
		s.TotalDiscovered = s.Processed
	}
	if len(s.Recent) > RecentCapacity {
		s.Recent = s.Recent[:RecentCapacity]
	}
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
