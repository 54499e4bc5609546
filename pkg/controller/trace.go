package controller

import "log/slog"

// Tracer brackets playbook, play, and task lifecycles for an observability
// backend. Implementations must tolerate unbalanced calls: a disconnect can
// end a run with spans still open.
type Tracer interface {
	BeginPlaybook()
	EndPlaybook()
	BeginPlay(name, hostPattern string)
	EndPlay()
	BeginTask(name string)
	EndTask(name, host string, changed, failed bool)
	RecordTaskError(name, msg string)
}

// NopTracer is the default when no observability is configured.
type NopTracer struct{}

func (NopTracer) BeginPlaybook()                     {}
func (NopTracer) EndPlaybook()                       {}
func (NopTracer) BeginPlay(string, string)           {}
func (NopTracer) EndPlay()                           {}
func (NopTracer) BeginTask(string)                   {}
func (NopTracer) EndTask(string, string, bool, bool) {}
func (NopTracer) RecordTaskError(string, string)     {}

// LogTracer emits span boundaries as structured log events.
type LogTracer struct {
	Logger *slog.Logger
}

func (t LogTracer) BeginPlaybook() { t.Logger.Debug("span begin", "span", "playbook") }
func (t LogTracer) EndPlaybook()   { t.Logger.Debug("span end", "span", "playbook") }

func (t LogTracer) BeginPlay(name, hostPattern string) {
	t.Logger.Debug("span begin", "span", "play", "play", name, "hosts", hostPattern)
}
func (t LogTracer) EndPlay() { t.Logger.Debug("span end", "span", "play") }

func (t LogTracer) BeginTask(name string) {
	t.Logger.Debug("span begin", "span", "task", "task", name)
}

func (t LogTracer) EndTask(name, host string, changed, failed bool) {
	t.Logger.Debug("span end", "span", "task", "task", name, "host", host, "changed", changed, "failed", failed)
}

func (t LogTracer) RecordTaskError(name, msg string) {
	t.Logger.Debug("span error", "span", "task", "task", name, "error", msg)
}
