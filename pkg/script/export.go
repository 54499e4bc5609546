package script

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for the
// scripted-action file format using invopop/jsonschema. scripts/gen-schema.go
// writes its output to pkg/script/schema.json, the copy embedded for
// validation.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	entry := r.Reflect(&Entry{})

	s := &jsonschema.Schema{
		Version:     entry.Version,
		ID:          "script.json",
		Title:       "playctl scripted actions",
		Type:        "array",
		Items:       &jsonschema.Schema{Ref: "#/$defs/Entry"},
		Definitions: entry.Definitions,
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// JSONSchema overrides reflection for Action, whose wire form is a tagged
// union rather than the struct fields: bare actions are strings, payload
// actions single-key objects.
func (Action) JSONSchema() *jsonschema.Schema {
	bare := &jsonschema.Schema{
		Type: "string",
		Enum: []any{
			string(Pause), string(Continue), string(Resume), string(Retry),
			string(AskAi), string(ApplyFix), string(AssertAiContext),
		},
	}

	editVarProps := jsonschema.NewProperties()
	editVarProps.Set("key", &jsonschema.Schema{Type: "string", MinLength: uptr(1)})
	editVarProps.Set("value", &jsonschema.Schema{})
	editVar := taggedAction(string(EditVar), &jsonschema.Schema{
		Type:                 "object",
		Required:             []string{"key", "value"},
		AdditionalProperties: jsonschema.FalseSchema,
		Properties:           editVarProps,
	})

	execProps := jsonschema.NewProperties()
	execProps.Set("cmd", &jsonschema.Schema{Type: "string", MinLength: uptr(1)})
	execCommand := taggedAction(string(ExecuteCommand), &jsonschema.Schema{
		Type:                 "object",
		Required:             []string{"cmd"},
		AdditionalProperties: jsonschema.FalseSchema,
		Properties:           execProps,
	})

	assertProps := jsonschema.NewProperties()
	assertProps.Set("contains", &jsonschema.Schema{Type: "string"})
	assertAi := taggedAction(string(AssertAiContext), &jsonschema.Schema{
		Type:                 "object",
		AdditionalProperties: jsonschema.FalseSchema,
		Properties:           assertProps,
	})

	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{bare, editVar, execCommand, assertAi},
	}
}

// taggedAction wraps a payload schema in the single-key object form
// {"Tag": {...}}.
func taggedAction(tag string, payload *jsonschema.Schema) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set(tag, payload)
	return &jsonschema.Schema{
		Type:                 "object",
		Required:             []string{tag},
		AdditionalProperties: jsonschema.FalseSchema,
		Properties:           props,
	}
}

func uptr(n uint64) *uint64 { return &n }
