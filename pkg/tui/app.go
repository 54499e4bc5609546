package tui

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/playctl/playctl/pkg/ai"
	"github.com/playctl/playctl/pkg/controller"
	"github.com/playctl/playctl/pkg/protocol"
)

// notificationTTL matches the headless runner's decay window.
const notificationTTL = 5 * time.Second

// --- Tea messages ---

// inboundMsg wraps a protocol record read from the engine connection.
type inboundMsg struct{ msg protocol.Message }

// inboundClosedMsg signals the inbound channel closed.
type inboundClosedMsg struct{}

// injectedMsg re-enters a controller-generated record (AI results) into the
// event loop.
type injectedMsg struct{ msg protocol.Message }

// tickMsg drives notification decay and duration display.
type tickMsg time.Time

// analysisDoneMsg returns an AI diagnosis to the model.
type analysisDoneMsg struct {
	task     string
	analysis *ai.Analysis
	err      error
}

// chatDoneMsg returns a chat completion to the model.
type chatDoneMsg struct {
	reply ai.ChatMessage
	err   error
}

// editorFinishedMsg is sent when the external $EDITOR process exits.
type editorFinishedMsg struct{ err error }

// --- Overlay state ---

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayPicker
	overlayChat
)

// Chatter is the conversational side of the AI client.
type Chatter interface {
	Chat(ctx context.Context, history []ai.ChatMessage) (ai.ChatMessage, error)
}

// --- Model ---

// Model is the top-level Bubble Tea model. It owns the Controller and its
// State: every mutation happens inside Update, so no lock guards them.
type Model struct {
	ctrl    *controller.Controller
	inbound <-chan protocol.Message
	chat    Chatter

	// Components
	history   historyPanel
	inspector inspectorPanel
	spin      spinner.Model

	// Overlays
	picker  varPicker
	chatBox chatOverlay
	overlay overlayKind

	// replay disables every key that would steer a live engine.
	replay bool

	completed bool
	fatalErr  string

	width  int
	height int
}

// Config holds the parameters needed to launch the TUI.
type Config struct {
	Controller *controller.Controller
	Inbound    <-chan protocol.Message
	Chat       Chatter
	Replay     bool
}

// NewModel builds the model without starting the program; Run is the normal
// entry point.
func NewModel(cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		ctrl:    cfg.Controller,
		inbound: cfg.Inbound,
		chat:    cfg.Chat,
		history: newHistoryPanel(cfg.Controller.State),
		spin:    sp,
		picker:  newVarPicker(cfg.Controller.State),
		chatBox: newChatOverlay(),
		replay:  cfg.Replay,
	}
}

// Run starts the TUI and blocks until it exits.
func Run(cfg Config) error {
	m := NewModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// AI results produced outside Update re-enter through the program's
	// queue, keeping State single-owner.
	cfg.Controller.Inject = func(msg protocol.Message) {
		p.Send(injectedMsg{msg: msg})
	}

	_, err := p.Run()
	return err
}

// Init returns the initial commands: listen for engine records and tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listenInbound(), tickCmd(), m.spin.Tick)
}

// listenInbound returns a command that waits for the next engine record.
func (m Model) listenInbound() tea.Cmd {
	if m.inbound == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-m.inbound
		if !ok {
			return inboundClosedMsg{}
		}
		return inboundMsg{msg: msg}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()
		m.picker.width, m.picker.height = msg.Width, msg.Height
		m.chatBox.width, m.chatBox.height = msg.Width, msg.Height
		m.refreshInspector()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case inboundMsg:
		m.ctrl.HandleMessage(context.Background(), msg.msg)
		if _, done := msg.msg.(protocol.ClientDisconnected); done {
			m.completed = true
		}
		if _, recap := msg.msg.(protocol.PlayRecap); recap {
			m.completed = true
		}
		m.refreshInspector()
		cmds = append(cmds, m.listenInbound())

	case inboundClosedMsg:
		m.completed = true

	case injectedMsg:
		m.ctrl.HandleMessage(context.Background(), msg.msg)
		m.refreshInspector()

	case tickMsg:
		s := m.ctrl.State
		if s.Notification != "" && time.Since(s.NotificationAt) > notificationTTL {
			s.Notification = ""
		}
		cmds = append(cmds, tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
		if m.ctrl.State.AskingAI {
			m.refreshInspector()
		}

	case analysisDoneMsg:
		if msg.err != nil {
			m.ctrl.State.AskingAI = false
			m.ctrl.State.Notify("analysis failed: " + msg.err.Error())
		} else {
			m.ctrl.HandleMessage(context.Background(),
				protocol.AiAnalysis{Task: msg.task, Analysis: msg.analysis})
		}
		m.refreshInspector()

	case chatDoneMsg:
		if msg.err != nil {
			m.chatBox.Fail(msg.err)
		} else {
			m.chatBox.Reply(msg.reply)
		}

	case editorFinishedMsg:
		m.finishEdit(msg.err)
		m.refreshInspector()
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Overlays consume input first.
	switch m.overlay {
	case overlayPicker:
		chosen, closed, cmd := m.picker.Update(msg)
		if closed {
			m.overlay = overlayNone
			return m, nil
		}
		if chosen != "" {
			return m.openEditor(chosen)
		}
		return m, cmd

	case overlayChat:
		prompt, closed, cmd := m.chatBox.Update(msg)
		if closed {
			m.overlay = overlayNone
			return m, nil
		}
		if prompt != "" {
			return m, m.chatCmd()
		}
		return m, cmd
	}

	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}

	switch {
	case key.Matches(msg, keys.Up):
		m.history.CursorUp()
		m.refreshInspector()

	case key.Matches(msg, keys.Down):
		m.history.CursorDown()
		m.refreshInspector()

	case key.Matches(msg, keys.PgUp):
		m.inspector.PageUp()

	case key.Matches(msg, keys.PgDown):
		m.inspector.PageDown()

	case key.Matches(msg, keys.Chat):
		if m.chat != nil {
			m.overlay = overlayChat
		}
	}

	if m.replay {
		return m, nil
	}

	ctx := context.Background()
	s := m.ctrl.State

	switch {
	case key.Matches(msg, keys.Proceed):
		if s.FailedTask != "" {
			m.ctrl.Continue(ctx)
		} else if s.WaitingForProceed {
			m.ctrl.Proceed(ctx)
		}
		m.refreshInspector()

	case key.Matches(msg, keys.Retry):
		if s.FailedTask != "" {
			m.ctrl.Retry(ctx)
			m.refreshInspector()
		}

	case key.Matches(msg, keys.Edit):
		if err := s.BeginSelect(); err == nil {
			m.picker.Open()
			m.overlay = overlayPicker
		}

	case key.Matches(msg, keys.AskAI):
		if cmd := m.askAIcmd(); cmd != nil {
			m.refreshInspector()
			return m, cmd
		}

	case key.Matches(msg, keys.ApplyFix):
		if s.Suggestion != nil && s.Suggestion.Fix != nil {
			fix := s.Suggestion.Fix
			m.ctrl.ModifyVar(ctx, fix.Key, fix.Value)
			s.Notify(fmt.Sprintf("applied fix: %s = %v", fix.Key, fix.Value))
		}

	case key.Matches(msg, keys.Breakpoint):
		if s.CurrentTask != "" {
			if s.ToggleBreakpoint(s.CurrentTask) {
				s.Notify("breakpoint set: " + s.CurrentTask)
			} else {
				s.Notify("breakpoint cleared: " + s.CurrentTask)
			}
		}
	}

	return m, nil
}

// askAIcmd starts a failure diagnosis on its own goroutine. The result
// re-enters Update as an analysisDoneMsg.
func (m *Model) askAIcmd() tea.Cmd {
	s := m.ctrl.State
	if m.ctrl.AI == nil || s.FailedTask == "" || s.AskingAI {
		return nil
	}
	s.AskingAI = true

	task := s.FailedTask
	vars, facts := s.TaskVars, s.Facts
	analyzer := m.ctrl.AI
	return func() tea.Msg {
		analysis, err := analyzer.AnalyzeFailure(context.Background(), task, "Task Failed", vars, facts)
		return analysisDoneMsg{task: task, analysis: analysis, err: err}
	}
}

// chatCmd sends the conversation so far to the AI.
func (m *Model) chatCmd() tea.Cmd {
	history := make([]ai.ChatMessage, len(m.chatBox.history))
	copy(history, m.chatBox.history)
	chat := m.chat
	return func() tea.Msg {
		reply, err := chat.Chat(context.Background(), history)
		return chatDoneMsg{reply: reply, err: err}
	}
}

// openEditor externalizes the chosen variable and hands the terminal to
// $EDITOR until it exits.
func (m Model) openEditor(name string) (tea.Model, tea.Cmd) {
	if err := m.ctrl.State.PrepareEdit(name); err != nil {
		m.ctrl.State.Notify(err.Error())
		m.ctrl.State.CancelEdit()
		m.overlay = overlayNone
		return m, nil
	}
	m.overlay = overlayNone

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, m.ctrl.State.Edit.TempFile)
	return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
		return editorFinishedMsg{err: err}
	})
}

// finishEdit applies the edited variable after the editor exits.
func (m *Model) finishEdit(editorErr error) {
	s := m.ctrl.State
	if editorErr != nil {
		s.CancelEdit()
		s.Notify("editor failed: " + editorErr.Error())
		return
	}
	key, value, err := s.ApplyEdit()
	if err != nil {
		s.Notify("edit discarded: " + err.Error())
		return
	}
	m.ctrl.ModifyVar(context.Background(), key, value)
	s.Notify(fmt.Sprintf("set %s = %v", key, value))
}

// refreshInspector re-renders the right pane from the current selection.
func (m *Model) refreshInspector() {
	if selected := m.history.Selected(); selected != nil {
		m.inspector.ShowTask(selected)
		return
	}
	if m.completed {
		m.inspector.ShowRecap(m.ctrl.State)
		return
	}
	m.inspector.ShowLive(m.ctrl.State, m.spin.View())
}

// layoutPanels recalculates panel dimensions based on terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}

	headerH := 1
	statusH := 2
	mainH := m.height - headerH - statusH
	if mainH < 4 {
		mainH = 4
	}

	histW := m.width * 35 / 100
	if histW < 28 {
		histW = 28
	}
	if histW > 60 {
		histW = 60
	}

	m.history.width = histW
	m.history.height = mainH
	m.inspector.SetSize(m.width-histW, mainH)
}

// View renders the complete TUI.
func (m Model) View() string {
	if m.fatalErr != "" {
		return errorStyle.Render("Fatal: "+m.fatalErr) + "\n\nPress q to quit."
	}

	switch m.overlay {
	case overlayPicker:
		return m.picker.View()
	case overlayChat:
		return m.chatBox.View(m.spin.View())
	}

	header := m.renderHeader()

	var main string
	if m.width > 0 {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.history.View(), m.inspector.View())
	}

	status := m.renderStatus()
	keyBar := keyBarText(m.ctrl.State.FailedTask != "", m.overlay)

	return header + "\n" + main + "\n" + status + "\n" + keyBar
}

// renderHeader builds the top header line.
func (m Model) renderHeader() string {
	title := headerStyle.Render("playctl")

	badge := disconnectedBadge.Render("offline")
	if m.ctrl.State.Connected {
		badge = connectedBadge.Render("connected")
	}
	if m.replay {
		badge = connectedBadge.Render("replay")
	}

	task := m.ctrl.State.CurrentTask
	if task == "" {
		task = "waiting for engine..."
	}

	left := title + " " + badge + "  " + valueStyle.Render(task)

	right := ""
	if !m.ctrl.State.TaskStartedAt.IsZero() && !m.completed {
		right = keyDescStyle.Render(fmt.Sprintf("%.1fs", m.ctrl.State.TaskDuration()))
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

// renderStatus builds the one-line status strip above the key bar.
func (m Model) renderStatus() string {
	s := m.ctrl.State

	if s.Notification != "" {
		return notificationStyle.Render(s.Notification)
	}
	if s.FailedTask != "" {
		return statusFailedStyle.Render(GlyphFailed + " " + s.FailedTask + " failed (r:retry c:skip a:ask ai)")
	}
	if m.completed {
		return statusWaitingStyle.Render("run complete")
	}
	if s.WaitingForProceed {
		return statusWaitingStyle.Render("paused (c to continue)")
	}
	return keyDescStyle.Render("running")
}
