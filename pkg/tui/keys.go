package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Proceed    key.Binding
	Retry      key.Binding
	Edit       key.Binding
	AskAI      key.Binding
	ApplyFix   key.Binding
	Breakpoint key.Binding
	Chat       key.Binding
	Up         key.Binding
	Down       key.Binding
	PgUp       key.Binding
	PgDown     key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Proceed: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "continue"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit var"),
	),
	AskAI: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "ask ai"),
	),
	ApplyFix: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "apply fix"),
	),
	Breakpoint: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "breakpoint"),
	),
	Chat: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "chat"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "browse up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "browse down"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(failed bool, overlay overlayKind) string {
	switch overlay {
	case overlayPicker:
		return keyStyle.Render("↑↓") + keyDescStyle.Render(":select") + "  " +
			keyStyle.Render("type") + keyDescStyle.Render(":filter") + "  " +
			keyStyle.Render("Enter") + keyDescStyle.Render(":edit") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":cancel")
	case overlayChat:
		return keyStyle.Render("Enter") + keyDescStyle.Render(":send") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":close")
	}

	if failed {
		return keyStyle.Render("r") + keyDescStyle.Render(":retry") + "  " +
			keyStyle.Render("c") + keyDescStyle.Render(":skip") + "  " +
			keyStyle.Render("a") + keyDescStyle.Render(":ask ai") + "  " +
			keyStyle.Render("f") + keyDescStyle.Render(":apply fix") + "  " +
			keyStyle.Render("e") + keyDescStyle.Render(":edit var") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	}
	return keyStyle.Render("c") + keyDescStyle.Render(":continue") + "  " +
		keyStyle.Render("e") + keyDescStyle.Render(":edit var") + "  " +
		keyStyle.Render("b") + keyDescStyle.Render(":breakpoint") + "  " +
		keyStyle.Render("?") + keyDescStyle.Render(":chat") + "  " +
		keyStyle.Render("↑↓") + keyDescStyle.Render(":browse") + "  " +
		keyStyle.Render("q") + keyDescStyle.Render(":quit")
}
