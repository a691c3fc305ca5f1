package ui

import (
	"context"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"scrapewatch/internal/export"
	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/launcher"
	"scrapewatch/internal/model"
)

// Launcher is the part of launcher.Launcher the view drives.
type Launcher interface {
	Start(ctx context.Context, targetURL string, maxPages int) (launcher.Session, error)
	StartDemo(ctx context.Context, targetURL string) (launcher.Session, error)
	Export(filename string) (string, int64, error)
	Records() []export.Record
	Close()
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	launcher Launcher
	opts     model.CLIOptions

	session  launcher.Session
	startErr error
	state    jobstate.State
	records  int
	finished bool

	exportPath  string
	exportBytes int64
	exportErr   error
	exporting   bool

	// UI
	width   int
	styles  Styles
	spinner spinner.Model
	bar     bubblesprogress.Model
	pageBar bubblesprogress.Model

	// Internal event channel used by the reporter to feed tea messages
	eventCh chan tea.Msg
}

func NewModel(ctx context.Context, l Launcher, opts model.CLIOptions, eventCh chan tea.Msg) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sty.Spinner

	return Model{
		ctx:      c,
		cancel:   cancel,
		launcher: l,
		opts:     opts,
		state:    jobstate.New(),
		styles:   sty,
		spinner:  sp,
		bar: bubblesprogress.New(
			bubblesprogress.WithDefaultGradient(),
			bubblesprogress.WithWidth(48),
		),
		pageBar: bubblesprogress.New(
			bubblesprogress.WithSolidFill("#60A5FA"),
			bubblesprogress.WithWidth(48),
		),
		eventCh: eventCh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenEventsCmd(), m.startCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.launcher.Close()
			m.cancel()
			return m, tea.Quit
		case "e":
			if !m.exporting && m.records > 0 {
				m.exporting = true
				return m, m.exportCmd(m.exportTarget())
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := clamp(msg.Width-24, 20, 72)
		m.bar.Width = w
		m.pageBar.Width = w
		return m, nil

	case sessionStartedMsg:
		m.session = msg.Session
		if msg.Err != nil && launcher.IsKind(msg.Err, launcher.KindValidation) {
			m.startErr = msg.Err
			m.cancel()
			return m, tea.Quit
		}
		m.startErr = msg.Err
		return m, nil

	case stateMsg:
		m.state = msg.S
		m.records = len(m.launcher.Records())
		return m, m.listenEventsCmd()

	case jobFinishedMsg:
		m.state = msg.S
		m.records = len(msg.Records)
		m.finished = true
		if m.opts.Out != "" && m.records > 0 {
			m.exporting = true
			return m, m.exportCmd(m.opts.Out)
		}
		return m, tea.Quit

	case exportedMsg:
		m.exporting = false
		m.exportPath, m.exportBytes, m.exportErr = msg.Path, msg.Bytes, msg.Err
		if m.finished {
			return m, tea.Quit
		}
		return m, nil

	case quitMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	return m.viewHeader() + "\n\n" + m.viewBody() + "\n" + m.viewFooter()
}

func (m Model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return quitMsg{}
		case msg := <-m.eventCh:
			return msg
		}
	}
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		var (
			sess launcher.Session
			err  error
		)
		if m.opts.Demo {
			sess, err = m.launcher.StartDemo(m.ctx, m.opts.URL)
		} else {
			sess, err = m.launcher.Start(m.ctx, m.opts.URL, m.opts.MaxPages)
		}
		return sessionStartedMsg{Session: sess, Err: err}
	}
}

func (m Model) exportCmd(filename string) tea.Cmd {
	return func() tea.Msg {
		path, n, err := m.launcher.Export(filename)
		return exportedMsg{Path: path, Bytes: n, Err: err}
	}
}

func (m Model) exportTarget() string {
	if m.opts.Out != "" {
		return m.opts.Out
	}
	return export.DefaultFilename
}

// teaReporter forwards launcher updates into the program.
type teaReporter struct {
	ctx context.Context
	ch  chan tea.Msg
}

func (r teaReporter) Update(s jobstate.State) {
	// Terminal states must not be dropped; the Finished message follows.
	if s.Terminal {
		r.send(stateMsg{S: s})
		return
	}
	select {
	case r.ch <- stateMsg{S: s}:
	default:
	}
}

func (r teaReporter) Finished(s jobstate.State, records []export.Record) {
	r.send(jobFinishedMsg{S: s, Records: records})
}

func (r teaReporter) send(msg tea.Msg) {
	select {
	case r.ch <- msg:
	case <-r.ctx.Done():
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
