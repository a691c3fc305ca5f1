package ui

import (
	"scrapewatch/internal/export"
	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/launcher"
)

type sessionStartedMsg struct {
	Session launcher.Session
	Err     error
}

type stateMsg struct {
	S jobstate.State
}

type jobFinishedMsg struct {
	S       jobstate.State
	Records []export.Record
}

type exportedMsg struct {
	Path  string
	Bytes int64
	Err   error
}

type quitMsg struct{}
