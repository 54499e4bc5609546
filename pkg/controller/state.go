// Package controller holds the authoritative in-memory model of playbook
// execution and the dispatcher that reacts to protocol records. The State is
// owned exclusively by one goroutine (the headless runner or the TUI event
// loop); everything else talks to it through channels.
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/playctl/playctl/pkg/ai"
	"github.com/playctl/playctl/pkg/protocol"
	"github.com/playctl/playctl/pkg/script"
)

// TaskHistory is one append-only record per task result, unreachable host, or
// play recap. Only the Analysis field is ever written after creation.
type TaskHistory struct {
	Name          string                     `json:"name"`
	Host          string                     `json:"host"`
	Changed       bool                       `json:"changed"`
	Failed        bool                       `json:"failed"`
	Duration      float64                    `json:"duration"`
	Error         string                     `json:"error,omitempty"`
	VerboseResult *protocol.ExecutionDetails `json:"verbose_result,omitempty"`
	Analysis      *ai.Analysis               `json:"analysis,omitempty"`
}

// HostStatus aggregates per-host task outcomes. The three counters are
// mutually exclusive per result: failed wins over changed, changed over ok.
type HostStatus struct {
	Name         string `json:"name"`
	OkTasks      int    `json:"ok_tasks"`
	ChangedTasks int    `json:"changed_tasks"`
	FailedTasks  int    `json:"failed_tasks"`
}

// EditPhase is the variable-edit lifecycle. Transitions only move forward:
// Idle → Selecting → Editing → Idle.
type EditPhase int

const (
	EditIdle EditPhase = iota
	EditSelecting
	EditEditing
)

// EditState tracks an in-progress variable edit. While Editing it owns a
// temporary file whose removal is guaranteed on both apply and cancel.
type EditState struct {
	Phase    EditPhase
	Filter   string
	Index    int
	Key      string
	TempFile string
}

// State is the single mutable execution model.
type State struct {
	CurrentTask   string
	TaskVars      any
	Facts         any
	TaskStartedAt time.Time

	FailedTask   string
	FailedResult any

	WaitingForProceed bool
	Connected         bool

	History     []TaskHistory
	Hosts       map[string]*HostStatus
	HostFacts   map[string]any
	PlayRecap   any
	Unreachable map[string]bool

	Breakpoints map[string]bool
	Edit        EditState
	Scripts     []script.Entry

	Suggestion *ai.Analysis
	AskingAI   bool

	Notification   string
	NotificationAt time.Time

	// now is swapped out in tests that need deterministic durations.
	now func() time.Time
}

func NewState() *State {
	return &State{
		Hosts:       make(map[string]*HostStatus),
		HostFacts:   make(map[string]any),
		Unreachable: make(map[string]bool),
		Breakpoints: make(map[string]bool),
		now:         time.Now,
	}
}

// SetTask records the task that is about to run and clears any prior failure.
func (s *State) SetTask(name string, vars, facts any) {
	s.CurrentTask = name
	s.TaskVars = vars
	s.Facts = facts
	s.TaskStartedAt = s.now()
	s.FailedTask = ""
	s.FailedResult = nil
	s.WaitingForProceed = true

	if f, ok := facts.(map[string]any); ok {
		if host, ok := f["inventory_hostname"].(string); ok {
			s.HostFacts[host] = facts
			if _, ok := s.Hosts[host]; !ok {
				s.Hosts[host] = &HostStatus{Name: host}
			}
		}
	}
}

// SetFailed marks the current task failed; the result becomes visible to the
// operator and the AI context.
func (s *State) SetFailed(name string, result, facts any) {
	s.FailedTask = name
	s.FailedResult = result
	if facts != nil {
		s.Facts = facts
	}
	s.WaitingForProceed = true
}

// RecordTaskResult appends a history entry and updates the host aggregates.
func (s *State) RecordTaskResult(name, host string, changed, failed bool, duration float64, errMsg string, verbose *protocol.ExecutionDetails, analysis *ai.Analysis) {
	s.History = append(s.History, TaskHistory{
		Name:          name,
		Host:          host,
		Changed:       changed,
		Failed:        failed,
		Duration:      duration,
		Error:         errMsg,
		VerboseResult: verbose,
		Analysis:      analysis,
	})

	hs, ok := s.Hosts[host]
	if !ok {
		hs = &HostStatus{Name: host}
		s.Hosts[host] = hs
	}
	switch {
	case failed:
		hs.FailedTasks++
	case changed:
		hs.ChangedTasks++
	default:
		hs.OkTasks++
	}
}

// SetUnreachable records an unreachable host as a failed history entry.
func (s *State) SetUnreachable(task, host, errMsg string, result any) {
	s.Unreachable[host] = true
	detail := errMsg
	if data, err := json.Marshal(result); err == nil && result != nil {
		detail = string(data)
	}
	s.History = append(s.History, TaskHistory{
		Name:   task,
		Host:   host,
		Failed: true,
		Error:  detail,
	})
}

// AttachAnalysis binds an AI diagnosis to the most recent history entry for
// the named task, if one exists.
func (s *State) AttachAnalysis(task string, analysis *ai.Analysis) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Name == task {
			s.History[i].Analysis = analysis
			return
		}
	}
}

// TaskDuration is the elapsed time since the current task started.
func (s *State) TaskDuration() float64 {
	if s.TaskStartedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.TaskStartedAt).Seconds()
}

// ToggleBreakpoint flips the breakpoint for a task name and reports whether
// it is now set.
func (s *State) ToggleBreakpoint(name string) bool {
	if s.Breakpoints[name] {
		delete(s.Breakpoints, name)
		return false
	}
	s.Breakpoints[name] = true
	return true
}

// Notify records a transient operator notification.
func (s *State) Notify(text string) {
	s.Notification = text
	s.NotificationAt = s.now()
}

const factPrefix = "ansible_facts."

// FlattenedVars lists all editable names: task variables plus facts behind
// the ansible_facts. prefix, sorted.
func (s *State) FlattenedVars() []string {
	var keys []string
	if vars, ok := s.TaskVars.(map[string]any); ok {
		for k := range vars {
			keys = append(keys, k)
		}
	}
	if facts, ok := s.Facts.(map[string]any); ok {
		for k := range facts {
			keys = append(keys, factPrefix+k)
		}
	}
	sort.Strings(keys)
	return keys
}

// VarValue resolves a flattened name back to its value.
func (s *State) VarValue(key string) (any, bool) {
	if rest, ok := strings.CutPrefix(key, factPrefix); ok {
		facts, ok := s.Facts.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := facts[rest]
		return v, ok
	}
	vars, ok := s.TaskVars.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := vars[key]
	return v, ok
}

// BeginSelect enters variable selection. Valid only from Idle.
func (s *State) BeginSelect() error {
	if s.Edit.Phase != EditIdle {
		return errors.New("edit already in progress")
	}
	s.Edit = EditState{Phase: EditSelecting}
	return nil
}

// FilteredVars returns the selection candidates under the current filter.
func (s *State) FilteredVars() []string {
	all := s.FlattenedVars()
	if s.Edit.Filter == "" {
		return all
	}
	needle := strings.ToLower(s.Edit.Filter)
	var out []string
	for _, v := range all {
		if strings.Contains(strings.ToLower(v), needle) {
			out = append(out, v)
		}
	}
	return out
}

// PrepareEdit externalizes the selected variable's JSON to a temp file and
// enters Editing. Valid only from Selecting; Idle can never jump straight to
// Editing.
func (s *State) PrepareEdit(key string) error {
	if s.Edit.Phase != EditSelecting {
		return errors.New("no variable selection in progress")
	}
	val, ok := s.VarValue(key)
	if !ok {
		return fmt.Errorf("variable %q not found", key)
	}
	content, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize variable: %w", err)
	}
	f, err := os.CreateTemp("", "playctl_edit_*.json")
	if err != nil {
		return fmt.Errorf("create edit file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write edit file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("close edit file: %w", err)
	}
	s.Edit = EditState{Phase: EditEditing, Key: key, TempFile: f.Name()}
	return nil
}

// ApplyEdit reads the edited file back, removes it, and returns the parsed
// key/value. The temp file is gone whether or not the content parses; the
// edit returns to Idle on every path.
func (s *State) ApplyEdit() (string, any, error) {
	if s.Edit.Phase != EditEditing {
		return "", nil, errors.New("no edit in progress")
	}
	key, path := s.Edit.Key, s.Edit.TempFile
	s.Edit = EditState{}

	content, readErr := os.ReadFile(path)
	os.Remove(path)
	if readErr != nil {
		return "", nil, fmt.Errorf("read edit file: %w", readErr)
	}
	var val any
	if err := json.Unmarshal(content, &val); err != nil {
		return "", nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return key, val, nil
}

// CancelEdit abandons any in-progress edit, removing the temp file if one
// exists.
func (s *State) CancelEdit() {
	if s.Edit.Phase == EditEditing && s.Edit.TempFile != "" {
		os.Remove(s.Edit.TempFile)
	}
	s.Edit = EditState{}
}
