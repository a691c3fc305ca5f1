package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/launcher"
	"scrapewatch/internal/model"
)

// Result is what the view saw when the program exited.
type Result struct {
	Session     launcher.Session
	State       jobstate.State
	StartErr    error
	Finished    bool
	Records     int
	ExportPath  string
	ExportBytes int64
	ExportErr   error
}

// Run launches the TUI for one job. build receives the reporter that feeds
// the view and must return the launcher that reports to it.
func Run(ctx context.Context, opts model.CLIOptions, build func(launcher.Reporter) Launcher) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventCh := make(chan tea.Msg, 64)
	l := build(teaReporter{ctx: runCtx, ch: eventCh})
	defer l.Close()

	m := NewModel(runCtx, l, opts, eventCh)
	prog := tea.NewProgram(m, tea.WithContext(runCtx))
	final, err := prog.Run()
	if err != nil {
		return Result{}, err
	}
	fm, ok := final.(Model)
	if !ok {
		return Result{}, nil
	}
	return fm.result(), nil
}

func (m Model) result() Result {
	return Result{
		Session:     m.session,
		State:       m.state,
		StartErr:    m.startErr,
		Finished:    m.finished,
		Records:     m.records,
		ExportPath:  m.exportPath,
		ExportBytes: m.exportBytes,
		ExportErr:   m.exportErr,
	}
}
