// Package highlight renders values as syntax-highlighted JSON for the
// inspector pane.
package highlight

import (
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

// JSON pretty-prints v and colors it for a 256-color terminal. On any
// highlighting failure the plain rendering is returned instead.
func JSON(v any) string {
	plain := PlainJSON(v)
	var buf strings.Builder
	if err := quick.Highlight(&buf, plain, "json", "terminal256", "monokai"); err != nil {
		return plain
	}
	return buf.String()
}

// PlainJSON pretty-prints v without color.
func PlainJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(data)
}
