package progress

import (
	"bytes"
	"encoding/json"
	"time"
)

// Type is the wire tag of a progress frame.
type Type string

const (
	TypeConnected       Type = "connected"
	TypePhase           Type = "phase"
	TypePagination      Type = "pagination"
	TypePageScraped     Type = "page_scraped"
	TypeURLsFound       Type = "urls_found"
	TypeScrapingItem    Type = "scraping_item"
	TypeOverallProgress Type = "overall_progress"
	TypeCompleted       Type = "completed"
	TypeError           Type = "error"
	TypeHeartbeat       Type = "heartbeat"

	// TypeNotice is client-local and never decoded from the wire.
	TypeNotice Type = "notice"
)

// ItemStatus is the per-item status reported by scraping_item frames.
type ItemStatus string

const (
	ItemLoading   ItemStatus = "loading"
	ItemCompleted ItemStatus = "completed"
	ItemError     ItemStatus = "error"
	ItemSkipped   ItemStatus = "skipped"
)

// Event is one decoded progress update. The set of implementations is
// closed: only types in this package satisfy it.
type Event interface {
	Type() Type
	isEvent()
}

// Envelope pairs an event with the time it reached the client.
type Envelope struct {
	Event      Event
	ReceivedAt time.Time
}

// Wrap stamps ev with the given arrival time.
func Wrap(ev Event, at time.Time) Envelope {
	return Envelope{Event: ev, ReceivedAt: at}
}

type Connected struct {
	Message string `json:"message,omitempty"`
}

type Phase struct {
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message"`
}

type Pagination struct {
	CurrentPage int    `json:"current_page"`
	MaxPages    int    `json:"max_pages,omitempty"`
	URL         string `json:"url,omitempty"`
	Message     string `json:"message"`
}

type PageScraped struct {
	CurrentPage        int    `json:"current_page"`
	ListingsOnPage     int    `json:"listings_on_page,omitempty"`
	TotalListingsSoFar int    `json:"total_listings_so_far"`
	Message            string `json:"message"`
}

type URLsFound struct {
	TotalURLs    int `json:"total_urls"`
	PagesScraped int `json:"pages_scraped"`
}

// Item is the structured result attached to a completed scraping_item.
type Item struct {
	Brand     string `json:"brand,omitempty"`
	Model     string `json:"model,omitempty"`
	Price     string `json:"price,omitempty"`
	Title     string `json:"title,omitempty"`
	Year      string `json:"year,omitempty"`
	Condition string `json:"condition,omitempty"`
	Location  string `json:"location,omitempty"`
}

// UnmarshalJSON accepts any scalar for each field, so a numeric price or
// year does not make the whole frame malformed.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w struct {
		Brand     Text `json:"brand"`
		Model     Text `json:"model"`
		Price     Text `json:"price"`
		Title     Text `json:"title"`
		Year      Text `json:"year"`
		Condition Text `json:"condition"`
		Location  Text `json:"location"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*it = Item{
		Brand:     string(w.Brand),
		Model:     string(w.Model),
		Price:     string(w.Price),
		Title:     string(w.Title),
		Year:      string(w.Year),
		Condition: string(w.Condition),
		Location:  string(w.Location),
	}
	return nil
}

// Text is a display field that upstream may send as a string, number,
// bool or null. Numbers keep their literal form; objects and arrays read
// as empty.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 {
		*t = ""
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{', '[', 'n':
		*t = ""
	default:
		// numbers and booleans
		*t = Text(raw)
	}
	return nil
}

type ScrapingItem struct {
	CurrentIndex int        `json:"current_index"`
	TotalCount   int        `json:"total_count"`
	URL          string     `json:"url"`
	Status       ItemStatus `json:"status"`
	Item         *Item      `json:"item,omitempty"`
	Error        string     `json:"error,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

type OverallProgress struct {
	Percentage float64 `json:"percentage"`
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
}

type Completed struct {
	TotalScraped   int `json:"total_scraped"`
	TotalProcessed int `json:"total_processed"`
}

type Error struct {
	Message string `json:"message,omitempty"`
	Err     string `json:"error,omitempty"`
}

type Heartbeat struct{}

// Unknown retains a frame whose tag this client does not recognize.
type Unknown struct {
	Tag  string
	Data []byte
}

// Notice is a status-only update produced locally by the launcher or the
// demo source. Demo marks the session as running on scripted data.
type Notice struct {
	Text string
	Demo bool
}

func (Connected) Type() Type       { return TypeConnected }
func (Phase) Type() Type           { return TypePhase }
func (Pagination) Type() Type      { return TypePagination }
func (PageScraped) Type() Type     { return TypePageScraped }
func (URLsFound) Type() Type       { return TypeURLsFound }
func (ScrapingItem) Type() Type    { return TypeScrapingItem }
func (OverallProgress) Type() Type { return TypeOverallProgress }
func (Completed) Type() Type       { return TypeCompleted }
func (Error) Type() Type           { return TypeError }
func (Heartbeat) Type() Type       { return TypeHeartbeat }
func (u Unknown) Type() Type       { return Type(u.Tag) }
func (Notice) Type() Type          { return TypeNotice }

func (Connected) isEvent()       {}
func (Phase) isEvent()           {}
func (Pagination) isEvent()      {}
func (PageScraped) isEvent()     {}
func (URLsFound) isEvent()       {}
func (ScrapingItem) isEvent()    {}
func (OverallProgress) isEvent() {}
func (Completed) isEvent()       {}
func (Error) isEvent()           {}
func (Heartbeat) isEvent()       {}
func (Unknown) isEvent()         {}
func (Notice) isEvent()          {}

// IsTerminal reports whether ev ends a job.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Completed, Error:
		return true
	}
	return false
}

// Text returns the server-reported failure text, preferring message over error.
func (e Error) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err
}
