package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/playctl/playctl/pkg/controller"
	"github.com/playctl/playctl/pkg/highlight"
)

// inspectorPanel is the right-hand pane: details for the selected history
// entry, or the live task's variables and failure result.
type inspectorPanel struct {
	viewport viewport.Model

	width  int
	height int
	ready  bool
}

func (p *inspectorPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := width - 4
	contentH := height - 3
	if contentW < 1 {
		contentW = 1
	}
	if contentH < 1 {
		contentH = 1
	}

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
}

func (p *inspectorPanel) PageUp()   { p.viewport.HalfViewUp() }
func (p *inspectorPanel) PageDown() { p.viewport.HalfViewDown() }

// ShowTask renders a finished task into the viewport.
func (p *inspectorPanel) ShowTask(task *controller.TaskHistory) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Task:"), task.Name)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Host:"), task.Host)
	fmt.Fprintf(&b, "%s %.2fs\n", labelStyle.Render("Duration:"), task.Duration)

	if task.Error != "" {
		b.WriteString("\n" + errorStyle.Render("Error: "+task.Error) + "\n")
	}
	if task.VerboseResult != nil {
		b.WriteString("\n" + labelStyle.Render("Result:") + "\n")
		b.WriteString(highlight.JSON(task.VerboseResult.Value) + "\n")
	}
	if task.Analysis != nil {
		b.WriteString("\n" + labelStyle.Render("AI Analysis:") + "\n")
		b.WriteString(renderMarkdown(task.Analysis.Analysis) + "\n")
		if fix := task.Analysis.Fix; fix != nil {
			fmt.Fprintf(&b, "\n%s %s = %v\n", labelStyle.Render("Suggested fix:"), fix.Key, fix.Value)
		}
	}

	p.setContent(b.String())
}

// ShowLive renders the in-flight task: failure result when halted on a
// failure, variables otherwise. spin is the current spinner frame shown
// while a diagnosis is in flight.
func (p *inspectorPanel) ShowLive(state *controller.State, spin string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Task:"), state.CurrentTask)

	if state.FailedTask != "" {
		b.WriteString("\n" + errorStyle.Render("Task failed") + "\n")
		b.WriteString(highlight.JSON(state.FailedResult) + "\n")
	} else if state.TaskVars != nil {
		b.WriteString("\n" + labelStyle.Render("Variables:") + "\n")
		b.WriteString(highlight.JSON(state.TaskVars) + "\n")
	}

	if state.Suggestion != nil {
		b.WriteString("\n" + labelStyle.Render("AI Analysis:") + "\n")
		b.WriteString(renderMarkdown(state.Suggestion.Analysis) + "\n")
		if fix := state.Suggestion.Fix; fix != nil {
			fmt.Fprintf(&b, "\n%s %s = %v\n", labelStyle.Render("Suggested fix:"), fix.Key, fix.Value)
		}
	}
	if state.AskingAI {
		b.WriteString("\n" + spin + statusWaitingStyle.Render("Asking AI...") + "\n")
	}

	p.setContent(b.String())
}

// ShowRecap renders the final recap and host summary.
func (p *inspectorPanel) ShowRecap(state *controller.State) {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Play Recap") + "\n\n")
	b.WriteString(hostSummary(state))
	if state.PlayRecap != nil {
		b.WriteString("\n" + highlight.JSON(state.PlayRecap) + "\n")
	}
	p.setContent(b.String())
}

func (p *inspectorPanel) setContent(content string) {
	if !p.ready {
		return
	}
	p.viewport.SetContent(content)
}

func (p *inspectorPanel) View() string {
	if p.width <= 0 {
		return ""
	}
	body := panelTitle.Render("Inspector") + "\n" + p.viewport.View()
	return panelBorder.Width(p.width - 2).Render(body)
}

// hostSummary is one line per host with its ok/changed/failed counters.
func hostSummary(state *controller.State) string {
	if len(state.Hosts) == 0 {
		return keyDescStyle.Render("(no hosts yet)") + "\n"
	}
	names := make([]string, 0, len(state.Hosts))
	for name := range state.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		h := state.Hosts[name]
		line := fmt.Sprintf("%s  ok=%d changed=%d failed=%d", h.Name, h.OkTasks, h.ChangedTasks, h.FailedTasks)
		if state.Unreachable[name] {
			line += "  " + GlyphUnreachable + " unreachable"
		}
		b.WriteString(valueStyle.Render(line) + "\n")
	}
	return b.String()
}
