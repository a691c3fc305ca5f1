package model

import "time"

// CLIOptions holds user-configurable runtime options as resolved from
// flags, environment, and the config file.
type CLIOptions struct {
	URL      string // Listing search URL to scrape.
	MaxPages int    // Result pages to walk, 1..50.
	Out      string // CSV path written when the job ends. Empty disables export.
	APIURL   string // Root of the job API.

	RequestTimeout time.Duration // Bound for health and start calls.
	IdleTimeout    time.Duration // Stream idle bound; 0 disables.
	DemoStep       time.Duration // Pause between scripted demo batches.
	Retries        int           // Extra health check attempts.

	Demo    bool // Skip the backend and replay scripted data.
	NoUI    bool // Disable TUI when true.
	Verbose bool
}
