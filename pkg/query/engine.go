// Package query evaluates expressions against an archived session document,
// for ad-hoc inspection of run history from the REPL or the MCP surface.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine compiles and runs queries against one session document. Top-level
// document fields (history, hosts, play_recap, ...) are addressable directly;
// a few aggregation helpers supplement the expression language's built-ins.
type Engine struct {
	env   map[string]any
	cache map[string]*vm.Program
}

func NewEngine(doc map[string]any) *Engine {
	env := make(map[string]any, len(doc)+3)
	for k, v := range doc {
		env[k] = v
	}
	env["group_by"] = groupBy
	env["unique"] = unique
	env["avg"] = avg
	return &Engine{env: env, cache: make(map[string]*vm.Program)}
}

// Eval compiles (with caching) and runs one query.
func (e *Engine) Eval(query string) (any, error) {
	program, ok := e.cache[query]
	if !ok {
		var err error
		program, err = expr.Compile(query, expr.Env(e.env))
		if err != nil {
			return nil, fmt.Errorf("compile query: %w", err)
		}
		e.cache[query] = program
	}
	out, err := expr.Run(program, e.env)
	if err != nil {
		return nil, fmt.Errorf("eval query: %w", err)
	}
	return out, nil
}

// groupBy buckets array items by the string form of a keying expression
// result: group_by(history, .host).
func groupBy(items []any, key func(any) any) map[string][]any {
	groups := make(map[string][]any)
	for _, item := range items {
		k := keyString(key(item))
		groups[k] = append(groups[k], item)
	}
	return groups
}

func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// unique preserves first-seen order, comparing items by JSON identity so
// objects and arrays deduplicate too.
func unique(items []any) []any {
	seen := make(map[string]bool, len(items))
	var out []any
	for _, item := range items {
		k := keyString(item)
		if !seen[k] {
			seen[k] = true
			out = append(out, item)
		}
	}
	return out
}

// avg of the numeric items; nil when none are numeric.
func avg(items []any) any {
	total, count := 0.0, 0
	for _, item := range items {
		switch n := item.(type) {
		case float64:
			total += n
			count++
		case int:
			total += float64(n)
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return total / float64(count)
}
