// Package script loads the scripted-action file used for headless regression
// replay: a JSON array of entries keyed by task name, each holding an ordered
// action list the controller runs in place of a human operator.
package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// ActionType enumerates the scripted control-flow actions.
type ActionType string

const (
	Pause           ActionType = "Pause"
	Continue        ActionType = "Continue"
	Resume          ActionType = "Resume"
	Retry           ActionType = "Retry"
	EditVar         ActionType = "EditVar"
	ExecuteCommand  ActionType = "ExecuteCommand"
	AskAi           ActionType = "AskAi"
	ApplyFix        ActionType = "ApplyFix"
	AssertAiContext ActionType = "AssertAiContext"
)

// Action is one scripted step. Bare actions serialize as a JSON string
// ("Retry"); payload actions as a single-key object
// ({"EditVar": {"key": ..., "value": ...}}).
type Action struct {
	Type ActionType

	// EditVar
	Key   string
	Value any

	// ExecuteCommand
	Cmd string

	// AssertAiContext; Contains empty means "any analysis present".
	Contains string
}

// Entry binds an action list to a task. OnFailure entries match TaskFail and
// TaskUnreachable; others match TaskStart.
type Entry struct {
	TaskName  string   `json:"task_name" jsonschema:"minLength=1"`
	OnFailure bool     `json:"on_failure,omitempty"`
	Actions   []Action `json:"actions"`
}

func (a *Action) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch t := ActionType(bare); t {
		case Pause, Continue, Resume, Retry, AskAi, ApplyFix:
			a.Type = t
			return nil
		case AssertAiContext:
			a.Type = t
			return nil
		default:
			return fmt.Errorf("unknown action %q", bare)
		}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("parse action: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("action must have exactly one tag, got %d", len(tagged))
	}
	for tag, payload := range tagged {
		switch ActionType(tag) {
		case EditVar:
			var p struct {
				Key   string `json:"key"`
				Value any    `json:"value"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("parse EditVar: %w", err)
			}
			a.Type, a.Key, a.Value = EditVar, p.Key, p.Value
		case ExecuteCommand:
			var p struct {
				Cmd string `json:"cmd"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("parse ExecuteCommand: %w", err)
			}
			a.Type, a.Cmd = ExecuteCommand, p.Cmd
		case AssertAiContext:
			var p struct {
				Contains string `json:"contains"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("parse AssertAiContext: %w", err)
			}
			a.Type, a.Contains = AssertAiContext, p.Contains
		default:
			return fmt.Errorf("unknown action %q", tag)
		}
	}
	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case EditVar:
		return json.Marshal(map[string]any{
			string(EditVar): map[string]any{"key": a.Key, "value": a.Value},
		})
	case ExecuteCommand:
		return json.Marshal(map[string]any{
			string(ExecuteCommand): map[string]string{"cmd": a.Cmd},
		})
	case AssertAiContext:
		if a.Contains != "" {
			return json.Marshal(map[string]any{
				string(AssertAiContext): map[string]string{"contains": a.Contains},
			})
		}
		return json.Marshal(string(a.Type))
	default:
		return json.Marshal(string(a.Type))
	}
}

// Load reads and validates a scripted-action file. A missing or malformed
// file is an error; the caller logs it once and runs unscripted.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script file: %w", err)
	}
	return Parse(data)
}

// Parse validates script JSON against the embedded schema and decodes it.
func Parse(data []byte) ([]Entry, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return entries, nil
}
