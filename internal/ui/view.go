package ui

import (
	"fmt"
	"strings"

	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/launcher"
	"scrapewatch/internal/progress"
	"scrapewatch/internal/util"
	"scrapewatch/internal/util/format"
)

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("scrapewatch - Equipment Trader scrape monitor")
	if m.session.Demo || m.state.Demo {
		title += " " + m.styles.Badge.Render("DEMO")
	}
	var sub string
	switch {
	case m.session.ID != "":
		sub = fmt.Sprintf("Session %s • %s", m.session.ID, truncate(util.RedactQuery(m.session.URL), 60))
	case m.opts.URL != "":
		sub = truncate(util.RedactQuery(m.opts.URL), 60)
	}
	if sub == "" {
		return title
	}
	return title + "\n" + m.styles.Subtitle.Render(sub)
}

func (m Model) viewBody() string {
	if m.startErr != nil && launcher.IsKind(m.startErr, launcher.KindValidation) {
		return m.styles.Error.Render("✗ "+m.startErr.Error()) + "\n"
	}

	s := m.state
	var b strings.Builder

	b.WriteString(m.viewStatus())
	b.WriteString("\n\n")

	// Overall progress
	b.WriteString(m.styles.Label.Render("Overall  "))
	if s.TotalKnown() {
		b.WriteString(fmt.Sprintf("%s %5.1f%%  %s",
			m.bar.ViewAs(s.Percentage/100.0), s.Percentage,
			m.styles.Faint.Render(fmt.Sprintf("%d/%d items", s.Processed, s.TotalDiscovered))))
	} else if s.Terminal {
		b.WriteString(m.styles.Faint.Render("no items discovered"))
	} else {
		b.WriteString(m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render("discovering listings"))
	}
	b.WriteString("\n")

	if s.TotalPages > 1 || (!s.TotalKnown() && s.CurrentPage > 1) {
		b.WriteString(m.styles.Label.Render("Pages    "))
		pages := s.TotalPages
		if pages <= 0 {
			pages = m.opts.MaxPages
		}
		b.WriteString(fmt.Sprintf("%s  %s", m.pageBar.ViewAs(s.PagePercent(m.opts.MaxPages)/100.0),
			m.styles.Faint.Render(fmt.Sprintf("page %d/%d", s.CurrentPage, pages))))
		b.WriteString("\n")
	}

	if s.Phase != "" {
		b.WriteString(m.styles.Label.Render("Phase    ") + m.styles.Phase.Render(s.Phase) + "\n")
	}

	if ci := s.CurrentItem; ci != nil {
		b.WriteString(m.viewCurrent(ci))
	}

	b.WriteString(m.viewStats())
	b.WriteString(m.viewRecent())
	b.WriteString(m.viewExport())
	return m.styles.Box.Render(b.String())
}

func (m Model) viewStatus() string {
	s := m.state
	text := s.Status
	if text == "" {
		text = "Waiting to start..."
	}
	switch {
	case s.Outcome == jobstate.OutcomeSucceeded:
		return m.styles.Success.Render("✓ " + text)
	case s.Outcome == jobstate.OutcomeFailed:
		return m.styles.Error.Render("✗ " + text)
	case s.Demo:
		return m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Warning.Render(text)
	}
	return m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Info.Render(text)
}

func (m Model) viewCurrent(ci *jobstate.ItemSnapshot) string {
	var b strings.Builder
	label := fmt.Sprintf("Item %d/%d ", ci.Index, ci.Total)
	b.WriteString(m.styles.Label.Render(label))
	switch ci.Status {
	case progress.ItemCompleted:
		b.WriteString(m.styles.Success.Render(string(ci.Status)))
	case progress.ItemError:
		b.WriteString(m.styles.Error.Render(string(ci.Status)))
	case progress.ItemSkipped:
		b.WriteString(m.styles.Warning.Render(string(ci.Status)))
	default:
		b.WriteString(m.styles.Phase.Render(string(ci.Status)))
	}
	b.WriteString("  " + m.styles.Faint.Render(truncate(ci.URL, 56)))
	b.WriteString("\n")
	if ci.Item != nil {
		b.WriteString("  " + m.styles.Header.Render(itemTitle(*ci.Item)))
		if ci.Item.Price != "" {
			b.WriteString("  " + m.styles.Success.Render(ci.Item.Price))
		}
		b.WriteString("\n")
	}
	if ci.Error != "" {
		b.WriteString("  " + m.styles.Error.Render(ci.Error) + "\n")
	}
	if ci.Reason != "" {
		b.WriteString("  " + m.styles.Warning.Render(ci.Reason) + "\n")
	}
	return b.String()
}

func (m Model) viewStats() string {
	s := m.state
	return fmt.Sprintf("\n%s %d   %s %d   %s %s   %s %s\n",
		m.styles.Label.Render("Discovered"), s.TotalDiscovered,
		m.styles.Label.Render("Processed"), s.Processed,
		m.styles.Label.Render("Successful"), m.styles.Success.Render(fmt.Sprint(s.Successful)),
		m.styles.Label.Render("Failed"), m.styles.Error.Render(fmt.Sprintf("~%d", s.Failed())),
	)
}

func (m Model) viewRecent() string {
	if len(m.state.Recent) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n" + m.styles.Subtitle.Render("Recent results:") + "\n")
	for _, r := range m.state.Recent {
		line := fmt.Sprintf("  %s  %s", r.CompletedAt.Format("15:04:05"), truncate(itemTitle(r.Item), 40))
		if r.Item.Price != "" {
			line += "  " + r.Item.Price
		}
		if r.Item.Location != "" {
			line += "  " + m.styles.Faint.Render(r.Item.Location)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m Model) viewExport() string {
	switch {
	case m.exporting:
		return "\n" + m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render("exporting...") + "\n"
	case m.exportErr != nil:
		return "\n" + m.styles.Error.Render("✗ export failed: "+m.exportErr.Error()) + "\n"
	case m.exportPath != "":
		return "\n" + m.styles.Success.Render(fmt.Sprintf("✓ Exported %d listings to %s (%s)",
			m.records, m.exportPath, format.HumanizeBytes(m.exportBytes))) + "\n"
	}
	return ""
}

func (m Model) viewFooter() string {
	keys := "q: quit"
	if m.records > 0 {
		keys += fmt.Sprintf(" • e: export %d listings", m.records)
	}
	return m.styles.Faint.Render(keys)
}

func itemTitle(it progress.Item) string {
	if it.Title != "" {
		return it.Title
	}
	t := strings.TrimSpace(it.Brand + " " + it.Model)
	if it.Year != "" {
		t = it.Year + " " + t
	}
	if t == "" {
		return "(untitled listing)"
	}
	return t
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
