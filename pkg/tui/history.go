package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/playctl/playctl/pkg/controller"
)

// historyPanel is the scrolling task list on the left: one row per history
// entry plus a live row for the task in flight.
type historyPanel struct {
	state  *controller.State
	cursor int
	follow bool

	width  int
	height int
}

func newHistoryPanel(state *controller.State) historyPanel {
	return historyPanel{state: state, follow: true}
}

func (p *historyPanel) CursorUp() {
	p.follow = false
	if p.cursor > 0 {
		p.cursor--
	}
}

func (p *historyPanel) CursorDown() {
	if p.cursor < p.rowCount()-1 {
		p.cursor++
	}
	if p.cursor == p.rowCount()-1 {
		p.follow = true
	}
}

// Selected returns the history entry under the cursor, or nil when the
// cursor sits on the live row.
func (p *historyPanel) Selected() *controller.TaskHistory {
	if p.follow {
		p.cursor = p.rowCount() - 1
	}
	if p.cursor >= 0 && p.cursor < len(p.state.History) {
		return &p.state.History[p.cursor]
	}
	return nil
}

// rowCount is history plus the in-flight task row when one exists.
func (p *historyPanel) rowCount() int {
	n := len(p.state.History)
	if p.state.CurrentTask != "" {
		n++
	}
	return n
}

func (p *historyPanel) View() string {
	if p.width <= 0 {
		return ""
	}
	if p.follow {
		p.cursor = p.rowCount() - 1
	}

	contentW := p.width - 4
	contentH := p.height - 3
	if contentH < 1 {
		contentH = 1
	}

	// Window the rows around the cursor.
	total := p.rowCount()
	start := 0
	if p.cursor >= contentH {
		start = p.cursor - contentH + 1
	}

	var lines []string
	for i := start; i < total && len(lines) < contentH; i++ {
		lines = append(lines, p.renderRow(i, contentW))
	}
	for len(lines) < contentH {
		lines = append(lines, "")
	}

	body := panelTitle.Render("Tasks") + "\n" + strings.Join(lines, "\n")
	return panelBorder.Width(p.width - 2).Render(body)
}

func (p *historyPanel) renderRow(i, width int) string {
	var glyph, name string
	var style = taskNormal

	if i < len(p.state.History) {
		task := p.state.History[i]
		name = task.Name
		switch {
		case task.Failed:
			glyph, style = GlyphFailed, taskFailed
		case task.Changed:
			glyph, style = GlyphChanged, taskChanged
		default:
			glyph, style = GlyphOk, taskOk
		}
		if p.state.Unreachable[task.Host] {
			glyph = GlyphUnreachable
		}
	} else {
		name = p.state.CurrentTask
		glyph, style = GlyphCurrent, taskCurrent
		if p.state.FailedTask != "" {
			glyph, style = GlyphFailed, taskFailed
		}
	}

	if p.state.Breakpoints[name] {
		glyph = GlyphBreakpoint
	}

	row := fmt.Sprintf("%s %s", glyph, name)
	row = runewidth.Truncate(row, width-2, "…")
	if i == p.cursor {
		return style.Bold(true).Render("> " + row)
	}
	return style.Render("  " + row)
}
