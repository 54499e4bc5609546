package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/playctl/playctl/pkg/controller"
)

// varPicker is the variable selection overlay shown while the edit state is
// Selecting. Typing narrows the filter; Enter picks the highlighted name.
type varPicker struct {
	state *controller.State
	input textinput.Model

	width  int
	height int
}

func newVarPicker(state *controller.State) varPicker {
	ti := textinput.New()
	ti.Placeholder = "variable name"
	ti.CharLimit = 128
	ti.Width = 40
	ti.Prompt = "Filter: "
	ti.PromptStyle = labelStyle
	return varPicker{state: state, input: ti}
}

// Open clears the filter and focuses the text input.
func (p *varPicker) Open() {
	p.input.Reset()
	p.input.Focus()
}

// Update handles a key while the picker is open. It returns the chosen
// variable name (empty if none yet) and whether the picker was dismissed.
func (p *varPicker) Update(msg tea.KeyMsg) (chosen string, closed bool, cmd tea.Cmd) {
	edit := &p.state.Edit

	switch msg.Type {
	case tea.KeyEsc:
		p.state.CancelEdit()
		p.input.Blur()
		return "", true, nil

	case tea.KeyEnter:
		candidates := p.state.FilteredVars()
		if len(candidates) == 0 {
			return "", false, nil
		}
		if edit.Index >= len(candidates) {
			edit.Index = len(candidates) - 1
		}
		return candidates[edit.Index], false, nil

	case tea.KeyUp:
		if edit.Index > 0 {
			edit.Index--
		}
		return "", false, nil

	case tea.KeyDown:
		if edit.Index < len(p.state.FilteredVars())-1 {
			edit.Index++
		}
		return "", false, nil
	}

	var c tea.Cmd
	p.input, c = p.input.Update(msg)
	if filter := p.input.Value(); filter != edit.Filter {
		edit.Filter = filter
		edit.Index = 0
	}
	return "", false, c
}

func (p *varPicker) View() string {
	edit := p.state.Edit
	candidates := p.state.FilteredVars()

	var b strings.Builder
	b.WriteString(panelTitle.Render("Edit Variable") + "\n\n")
	b.WriteString(p.input.View() + "\n\n")

	maxRows := p.height - 12
	if maxRows < 5 {
		maxRows = 5
	}
	start := 0
	if edit.Index >= maxRows {
		start = edit.Index - maxRows + 1
	}

	if len(candidates) == 0 {
		b.WriteString(keyDescStyle.Render("  (no matching variables)") + "\n")
	}
	for i := start; i < len(candidates) && i < start+maxRows; i++ {
		if i == edit.Index {
			b.WriteString(taskCurrent.Render("> "+candidates[i]) + "\n")
		} else {
			b.WriteString(valueStyle.Render("  "+candidates[i]) + "\n")
		}
	}

	contentW := p.width - 12
	if contentW < 40 {
		contentW = 40
	}
	box := overlayBorder.Width(contentW).Render(b.String())
	return lipgloss.Place(p.width, p.height, lipgloss.Center, lipgloss.Center, box)
}
