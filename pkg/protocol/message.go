// Package protocol defines the wire messages exchanged between the playctl
// controller and the execution engine's strategy plugin. Records travel as
// newline-delimited, self-tagging JSON: payload-carrying kinds encode as a
// single-key object ({"TaskStart": {...}}) and bare kinds as a JSON string
// ("Proceed"). The strategy plugin speaks exactly this shape.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Message is one wire record. The concrete types below form the closed set
// of kinds; nothing else ever crosses the wire.
type Message interface {
	kind() string
}

// Handshake is the first record on every connection. Token is compared
// against the configured shared secret, if any.
type Handshake struct {
	Token string `json:"token,omitempty"`
}

// PlayStart announces that a play began.
type PlayStart struct {
	Name        string `json:"name"`
	HostPattern string `json:"host_pattern"`
}

// TaskStart announces that a task is about to run.
type TaskStart struct {
	Name     string `json:"name"`
	TaskVars any    `json:"task_vars"`
	Facts    any    `json:"facts,omitempty"`
}

// TaskFail reports a task failure, before the engine blocks waiting for a
// control command.
type TaskFail struct {
	Name   string `json:"name"`
	Result any    `json:"result"`
	Facts  any    `json:"facts,omitempty"`
}

// TaskResult reports a finished task on one host.
type TaskResult struct {
	Name          string            `json:"name"`
	Host          string            `json:"host"`
	Changed       bool              `json:"changed"`
	Failed        bool              `json:"failed"`
	VerboseResult *ExecutionDetails `json:"verbose_result,omitempty"`
}

// TaskUnreachable reports a host that could not be reached.
type TaskUnreachable struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Error  string `json:"error"`
	Result any    `json:"result"`
}

// PlayRecap carries the engine's final per-play statistics.
type PlayRecap struct {
	Stats any `json:"stats"`
}

// Proceed tells the engine to run the next task.
type Proceed struct{}

// Retry tells the engine to re-queue the failed task.
type Retry struct{}

// Continue tells the engine to move past a failed task.
type Continue struct{}

// ModifyVar injects or overrides an engine variable, typically before Retry.
type ModifyVar struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// AiAnalysis is never written to the wire by the engine; the controller
// injects it into its own event stream when an AI diagnosis completes.
type AiAnalysis struct {
	Task     string `json:"task"`
	Analysis any    `json:"analysis"`
}

// ClientDisconnected is synthesized by the connection session when the
// engine's connection drops. It never appears on the wire.
type ClientDisconnected struct{}

func (Handshake) kind() string          { return "Handshake" }
func (PlayStart) kind() string          { return "PlayStart" }
func (TaskStart) kind() string          { return "TaskStart" }
func (TaskFail) kind() string           { return "TaskFail" }
func (TaskResult) kind() string         { return "TaskResult" }
func (TaskUnreachable) kind() string    { return "TaskUnreachable" }
func (PlayRecap) kind() string          { return "PlayRecap" }
func (Proceed) kind() string            { return "Proceed" }
func (Retry) kind() string              { return "Retry" }
func (Continue) kind() string           { return "Continue" }
func (ModifyVar) kind() string          { return "ModifyVar" }
func (AiAnalysis) kind() string         { return "AiAnalysis" }
func (ClientDisconnected) kind() string { return "ClientDisconnected" }

// Kind returns the wire tag of a message.
func Kind(m Message) string { return m.kind() }

// unit kinds carry no payload and encode as bare JSON strings.
var unitKinds = map[string]Message{
	"Proceed":            Proceed{},
	"Retry":              Retry{},
	"Continue":           Continue{},
	"ClientDisconnected": ClientDisconnected{},
}

// Encode serializes a message to one wire line, including the trailing
// newline.
func Encode(m Message) ([]byte, error) {
	var body []byte
	var err error
	if _, unit := unitKinds[m.kind()]; unit {
		body, err = json.Marshal(m.kind())
	} else {
		body, err = json.Marshal(map[string]Message{m.kind(): m})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.kind(), err)
	}
	return append(body, '\n'), nil
}

// Decode parses one wire line into a message. Unknown tags and malformed
// JSON are errors; the session treats them like transport failures.
func Decode(line []byte) (Message, error) {
	var tag string
	if err := json.Unmarshal(line, &tag); err == nil {
		if m, ok := unitKinds[tag]; ok {
			return m, nil
		}
		return nil, fmt.Errorf("decode: unknown message kind %q", tag)
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(line, &tagged); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("decode: expected a single-key record, got %d keys", len(tagged))
	}

	for tag, payload := range tagged {
		m, err := decodePayload(tag, payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", tag, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("decode: empty record")
}

func decodePayload(tag string, payload json.RawMessage) (Message, error) {
	switch tag {
	case "Handshake":
		var m Handshake
		return m, json.Unmarshal(payload, &m)
	case "PlayStart":
		var m PlayStart
		return m, json.Unmarshal(payload, &m)
	case "TaskStart":
		var m TaskStart
		return m, json.Unmarshal(payload, &m)
	case "TaskFail":
		var m TaskFail
		return m, json.Unmarshal(payload, &m)
	case "TaskResult":
		var m TaskResult
		return m, json.Unmarshal(payload, &m)
	case "TaskUnreachable":
		var m TaskUnreachable
		return m, json.Unmarshal(payload, &m)
	case "PlayRecap":
		var m PlayRecap
		return m, json.Unmarshal(payload, &m)
	case "ModifyVar":
		var m ModifyVar
		return m, json.Unmarshal(payload, &m)
	case "AiAnalysis":
		var m AiAnalysis
		return m, json.Unmarshal(payload, &m)
	default:
		return nil, fmt.Errorf("unknown message kind")
	}
}

// Reader yields messages from a line-delimited stream, buffering until a
// full line is available.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps a byte stream for message decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next message, io.EOF at clean end of stream, or an error
// for transport or decode failures.
func (r *Reader) Read() (Message, error) {
	line, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		return nil, err
	}
	return Decode(line)
}
