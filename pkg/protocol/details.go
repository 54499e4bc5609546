package protocol

import (
	"encoding/json"
	"strings"
)

// ExecutionDetails wraps the engine's verbose task result, an arbitrary JSON
// document, and exposes typed accessors for the fields operators most often
// inspect.
type ExecutionDetails struct {
	Value any
}

// NewExecutionDetails wraps an already-decoded JSON value.
func NewExecutionDetails(v any) *ExecutionDetails {
	return &ExecutionDetails{Value: v}
}

func (d ExecutionDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Value)
}

func (d *ExecutionDetails) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Value)
}

func (d *ExecutionDetails) field(key string) any {
	obj, ok := d.Value.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}

// Stdout returns the captured stdout, if the result carries one.
func (d *ExecutionDetails) Stdout() string {
	s, _ := d.field("stdout").(string)
	return s
}

// Stderr returns the captured stderr, if the result carries one.
func (d *ExecutionDetails) Stderr() string {
	s, _ := d.field("stderr").(string)
	return s
}

// Msg returns the engine's summary message, if any.
func (d *ExecutionDetails) Msg() string {
	s, _ := d.field("msg").(string)
	return s
}

// Cmd returns the executed command. The engine reports it either as a string
// or as an argv list, directly or under invocation.module_args.
func (d *ExecutionDetails) Cmd() string {
	v := d.field("cmd")
	if v == nil {
		if inv, ok := d.field("invocation").(map[string]any); ok {
			if ma, ok := inv["module_args"].(map[string]any); ok {
				v = ma["cmd"]
			}
		}
	}
	switch cmd := v.(type) {
	case string:
		return cmd
	case []any:
		parts := make([]string, 0, len(cmd))
		for _, p := range cmd {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
