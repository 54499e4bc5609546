package controller

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/playctl/playctl/pkg/ai"
	"github.com/playctl/playctl/pkg/protocol"
	"github.com/playctl/playctl/pkg/script"
)

const (
	// Headless auto-proceed waits briefly so observers (script matcher,
	// telemetry) see the event before control returns to the engine.
	headlessProceedDelay = 500 * time.Millisecond
	// Recovery waits between ModifyVar and Retry so the engine applies the
	// override first.
	recoveryDelay     = 500 * time.Millisecond
	scriptActionDelay = 100 * time.Millisecond
	scriptPauseDelay  = 5 * time.Second
)

// Analyzer is the slice of the AI client the dispatcher needs.
type Analyzer interface {
	AnalyzeFailure(ctx context.Context, taskName, errMsg string, vars, facts any) (*ai.Analysis, error)
}

// Controller applies dispatch decisions to the State and emits engine
// commands on Out. It must only ever be driven from the single goroutine
// that owns the State.
type Controller struct {
	State       *State
	Out         chan<- protocol.Message
	AI          Analyzer // nil disables analysis
	Headless    bool
	AutoAnalyze bool
	Tracer      Tracer
	Logger      *slog.Logger

	// Inject feeds a record back into the owning event loop. The headless
	// runner wires this to its own channel; when nil the record is handled
	// inline.
	Inject func(protocol.Message)

	// sleep and runCommand are swapped out in tests.
	sleep      func(time.Duration)
	runCommand func(cmd string) error
}

func New(state *State, out chan<- protocol.Message, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		State:  state,
		Out:    out,
		Tracer: NopTracer{},
		Logger: logger,
		sleep:  time.Sleep,
		runCommand: func(cmd string) error {
			return exec.Command("sh", "-c", cmd).Run()
		},
	}
}

// HandleMessage dispatches one inbound record against the current state.
func (c *Controller) HandleMessage(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Handshake:
		c.State.Connected = true
		c.Logger.Info("client connected")
		c.Tracer.BeginPlaybook()
		c.send(ctx, protocol.Proceed{})

	case protocol.PlayStart:
		c.Logger.Info("play started", "play", m.Name, "hosts", m.HostPattern)
		c.Tracer.EndPlay()
		c.Tracer.BeginPlay(m.Name, m.HostPattern)
		c.send(ctx, protocol.Proceed{})

	case protocol.TaskStart:
		c.Logger.Info("task started", "task", m.Name)
		c.State.SetTask(m.Name, m.TaskVars, m.Facts)
		c.Tracer.BeginTask(m.Name)

		switch {
		case c.runMatchingScript(ctx, m.Name, false):
			// scripted control flow replaces both halt and auto-proceed

		case c.State.Breakpoints[m.Name]:
			c.State.WaitingForProceed = true
			c.Logger.Info("breakpoint hit", "task", m.Name)
			c.State.Notify("Breakpoint hit: " + m.Name)

		case c.Headless:
			c.sleep(headlessProceedDelay)
			c.State.WaitingForProceed = false
			c.send(ctx, protocol.Proceed{})

		default:
			c.State.WaitingForProceed = true
		}

	case protocol.TaskFail:
		c.Logger.Warn("task failed", "task", m.Name)
		c.Tracer.RecordTaskError(m.Name, "task failed")
		c.State.SetFailed(m.Name, m.Result, m.Facts)
		if c.Headless {
			c.handleHeadlessFailure(ctx, m.Name)
		}

	case protocol.TaskResult:
		status := taskStatus(m.Failed, m.Changed)
		c.Logger.Info("task result", "task", m.Name, "host", m.Host, "status", status)
		c.Tracer.EndTask(m.Name, m.Host, m.Changed, m.Failed)
		c.State.RecordTaskResult(m.Name, m.Host, m.Changed, m.Failed,
			c.State.TaskDuration(), "", m.VerboseResult, nil)

	case protocol.TaskUnreachable:
		c.Logger.Warn("host unreachable", "task", m.Name, "host", m.Host, "error", m.Error)
		c.Tracer.RecordTaskError(m.Name, "host unreachable: "+m.Error)
		c.State.SetUnreachable(m.Name, m.Host, m.Error, m.Result)
		if c.Headless {
			c.runMatchingScript(ctx, m.Name, true)
		}

	case protocol.PlayRecap:
		c.Logger.Info("play recap received")
		c.Tracer.EndPlay()
		c.State.RecordTaskResult("Play Recap", "all", false, false, 0, "",
			&protocol.ExecutionDetails{Value: m.Stats}, nil)
		c.State.PlayRecap = m.Stats
		c.State.SetTask("Playbook Complete", nil, nil)
		c.State.WaitingForProceed = false
		c.Tracer.EndPlaybook()

	case protocol.AiAnalysis:
		c.State.AskingAI = false
		if analysis, ok := m.Analysis.(*ai.Analysis); ok {
			c.State.Suggestion = analysis
			c.State.AttachAnalysis(m.Task, analysis)
		}
		c.Logger.Info("analysis received", "task", m.Task)
		c.State.Notify("AI analysis ready")

	case protocol.ClientDisconnected:
		c.State.Connected = false
		c.Logger.Info("client disconnected")

	case protocol.Proceed, protocol.Retry, protocol.Continue, protocol.ModifyVar:
		// outbound-only kinds echoed back are ignored
	}
}

// Proceed resumes a halted task on operator request.
func (c *Controller) Proceed(ctx context.Context) {
	c.State.WaitingForProceed = false
	c.send(ctx, protocol.Proceed{})
}

// Retry asks the engine to run the failed task again.
func (c *Controller) Retry(ctx context.Context) {
	c.State.WaitingForProceed = false
	c.send(ctx, protocol.Retry{})
}

// Continue skips past a failed task.
func (c *Controller) Continue(ctx context.Context) {
	c.State.WaitingForProceed = false
	c.send(ctx, protocol.Continue{})
}

// ModifyVar injects a variable override before the next retry.
func (c *Controller) ModifyVar(ctx context.Context, key string, value any) {
	c.send(ctx, protocol.ModifyVar{Key: key, Value: value})
}

// runMatchingScript consumes and runs the first script entry matching the
// key; consumed entries never match again. Reports whether one ran.
func (c *Controller) runMatchingScript(ctx context.Context, taskName string, onFailure bool) bool {
	entry, ok := c.takeScript(taskName, onFailure)
	if !ok {
		return false
	}
	c.Logger.Info("running scripted actions", "task", taskName, "on_failure", onFailure, "actions", len(entry.Actions))
	c.runScript(ctx, entry.Actions)
	return true
}

func (c *Controller) takeScript(taskName string, onFailure bool) (script.Entry, bool) {
	for i, e := range c.State.Scripts {
		if e.TaskName == taskName && e.OnFailure == onFailure {
			c.State.Scripts = append(c.State.Scripts[:i:i], c.State.Scripts[i+1:]...)
			return e, true
		}
	}
	return script.Entry{}, false
}

func (c *Controller) runScript(ctx context.Context, actions []script.Action) {
	for _, a := range actions {
		switch a.Type {
		case script.Pause:
			c.Logger.Info("scripted pause")
			c.sleep(scriptPauseDelay)

		case script.Continue:
			c.send(ctx, protocol.Continue{})

		case script.Resume:
			c.State.WaitingForProceed = false
			c.send(ctx, protocol.Proceed{})

		case script.Retry:
			c.send(ctx, protocol.Retry{})

		case script.EditVar:
			c.Logger.Info("scripted variable override", "key", a.Key)
			c.send(ctx, protocol.ModifyVar{Key: a.Key, Value: a.Value})

		case script.ExecuteCommand:
			c.Logger.Info("scripted command", "cmd", a.Cmd)
			if err := c.runCommand(a.Cmd); err != nil {
				c.Logger.Warn("scripted command failed", "cmd", a.Cmd, "error", err)
			}

		case script.AskAi:
			c.askAI(ctx)

		case script.ApplyFix:
			if c.State.Suggestion != nil && c.State.Suggestion.Fix != nil {
				fix := c.State.Suggestion.Fix
				c.send(ctx, protocol.ModifyVar{Key: fix.Key, Value: fix.Value})
			}

		case script.AssertAiContext:
			c.assertAiContext(a.Contains)
		}
		c.sleep(scriptActionDelay)
	}
}

func (c *Controller) askAI(ctx context.Context) {
	if c.AI == nil {
		c.Logger.Warn("scripted AskAi with no analyzer configured")
		return
	}
	analysis, err := c.AI.AnalyzeFailure(ctx, c.State.CurrentTask, "Task Failed", c.State.TaskVars, c.State.Facts)
	if err != nil {
		c.Logger.Warn("analysis request failed", "error", err)
		return
	}
	c.State.Suggestion = analysis
}

// assertAiContext checks the current suggestion and logs pass/fail without
// ever aborting the run, so a scripted suite keeps reporting past a miss.
func (c *Controller) assertAiContext(contains string) {
	switch {
	case c.State.Suggestion == nil:
		c.Logger.Warn("assertion failed: no analysis present")
	case contains == "":
		c.Logger.Info("assertion passed: analysis present")
	case strings.Contains(c.State.Suggestion.Analysis, contains):
		c.Logger.Info("assertion passed", "contains", contains)
	default:
		c.Logger.Warn("assertion failed", "contains", contains)
	}
}

// handleHeadlessFailure picks one of three paths (script, auto-analysis,
// token accounting), then always applies the default recovery: clear
// should_fail and retry.
func (c *Controller) handleHeadlessFailure(ctx context.Context, name string) {
	switch {
	case c.runMatchingScript(ctx, name, true):

	case c.AI != nil && c.AutoAnalyze:
		analysis, err := c.AI.AnalyzeFailure(ctx, name, "Task Failed", c.State.TaskVars, c.State.Facts)
		if err != nil {
			c.Logger.Warn("analysis request failed", "task", name, "error", err)
			break
		}
		c.Logger.Info("analysis", "task", name, "analysis", analysis.Analysis)
		if analysis.Fix != nil {
			c.Logger.Info("suggested fix", "key", analysis.Fix.Key, "value", analysis.Fix.Value)
		}
		c.inject(ctx, protocol.AiAnalysis{Task: name, Analysis: analysis})

	case c.AI != nil:
		analysis, err := c.AI.AnalyzeFailure(ctx, name, "Task Failed", c.State.TaskVars, c.State.Facts)
		if err != nil {
			c.Logger.Warn("analysis request failed", "task", name, "error", err)
			break
		}
		c.Logger.Info("analysis tokens", "tokens", analysis.TokensUsed)
	}

	c.send(ctx, protocol.ModifyVar{Key: "should_fail", Value: false})
	c.sleep(recoveryDelay)
	c.send(ctx, protocol.Retry{})
}

func (c *Controller) inject(ctx context.Context, msg protocol.Message) {
	if c.Inject != nil {
		c.Inject(msg)
		return
	}
	c.HandleMessage(ctx, msg)
}

func (c *Controller) send(ctx context.Context, msg protocol.Message) {
	if c.Out == nil {
		return
	}
	select {
	case c.Out <- msg:
	case <-ctx.Done():
	}
}

func taskStatus(failed, changed bool) string {
	switch {
	case failed:
		return "FAILED"
	case changed:
		return "CHANGED"
	default:
		return "OK"
	}
}
