package script

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

var compileSchema = sync.OnceValues(func() (*sjsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal embedded schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("script.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("script.json")
})

// validate checks raw script JSON against the embedded schema before decoding,
// so a misshapen file is reported with a JSON-pointer location instead of a
// zero-valued action slipping through.
func validate(data []byte) error {
	sch, err := compileSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse script: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			leaf := flatten(ve)[0]
			return fmt.Errorf("script schema: /%s: %v",
				strings.Join(leaf.InstanceLocation, "/"), leaf.ErrorKind)
		}
		return fmt.Errorf("script schema: %w", err)
	}
	return nil
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}
