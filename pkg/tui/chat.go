package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/playctl/playctl/pkg/ai"
)

// chatOverlay is the free-form AI conversation over the current run.
type chatOverlay struct {
	history []ai.ChatMessage
	input   textinput.Model
	waiting bool

	width  int
	height int
}

func newChatOverlay() chatOverlay {
	ti := textinput.New()
	ti.Placeholder = "ask about the run"
	ti.CharLimit = 512
	ti.Width = 60
	ti.Prompt = "> "
	ti.PromptStyle = labelStyle
	ti.Focus()
	return chatOverlay{input: ti}
}

// Update handles a key while the chat is open. A non-empty submitted string
// means the user pressed Enter on a prompt.
func (c *chatOverlay) Update(msg tea.KeyMsg) (submitted string, closed bool, cmd tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return "", true, nil

	case tea.KeyEnter:
		prompt := c.input.Value()
		if c.waiting || strings.TrimSpace(prompt) == "" {
			return "", false, nil
		}
		c.input.Reset()
		c.waiting = true
		c.history = append(c.history, ai.ChatMessage{Role: "user", Content: prompt})
		return prompt, false, nil
	}

	var cc tea.Cmd
	c.input, cc = c.input.Update(msg)
	return "", false, cc
}

// Reply appends the assistant's answer and reopens the prompt.
func (c *chatOverlay) Reply(msg ai.ChatMessage) {
	c.history = append(c.history, msg)
	c.waiting = false
}

// Fail reports a chat error inline without losing the conversation.
func (c *chatOverlay) Fail(err error) {
	c.history = append(c.history, ai.ChatMessage{
		Role:    "assistant",
		Content: "error: " + err.Error(),
	})
	c.waiting = false
}

// View renders the conversation; spin is the current spinner frame shown
// while a completion is in flight.
func (c *chatOverlay) View(spin string) string {
	contentW := c.width - 12
	if contentW < 50 {
		contentW = 50
	}

	var b strings.Builder
	b.WriteString(panelTitle.Render("AI Chat") + "\n\n")

	// Show the tail of the conversation that fits.
	maxTurns := 8
	start := 0
	if len(c.history) > maxTurns {
		start = len(c.history) - maxTurns
	}
	for _, msg := range c.history[start:] {
		switch msg.Role {
		case "user":
			b.WriteString(labelStyle.Render("you: ") + msg.Content + "\n\n")
		default:
			b.WriteString(renderMarkdownWidth(msg.Content, contentW-4) + "\n\n")
		}
	}

	if c.waiting {
		b.WriteString(spin + statusWaitingStyle.Render("thinking...") + "\n")
	} else {
		b.WriteString(c.input.View() + "\n")
	}

	box := overlayBorder.Width(contentW).Render(b.String())
	return lipgloss.Place(c.width, c.height, lipgloss.Center, lipgloss.Center, box)
}
