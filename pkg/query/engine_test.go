package query

import (
	"reflect"
	"strings"
	"testing"
)

func sampleDoc() map[string]any {
	return map[string]any{
		"history": []any{
			map[string]any{"name": "Install nginx", "host": "web1", "failed": false, "changed": true, "duration": 2.0},
			map[string]any{"name": "Start nginx", "host": "web1", "failed": true, "changed": false, "duration": 1.0},
			map[string]any{"name": "Install nginx", "host": "web2", "failed": false, "changed": false, "duration": 3.0},
		},
		"hosts": map[string]any{
			"web1": map[string]any{"ok_tasks": 1, "failed_tasks": 1},
			"web2": map[string]any{"ok_tasks": 1, "failed_tasks": 0},
		},
		"unreachable": []any{"db1"},
	}
}

func TestEvalFieldAccess(t *testing.T) {
	e := NewEngine(sampleDoc())
	out, err := e.Eval("unreachable")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, []any{"db1"}) {
		t.Fatalf("unreachable = %v", out)
	}
}

func TestEvalFilterAndMap(t *testing.T) {
	e := NewEngine(sampleDoc())
	out, err := e.Eval("map(filter(history, .failed), .name)")
	if err != nil {
		t.Fatal(err)
	}
	names, ok := out.([]any)
	if !ok || len(names) != 1 || names[0] != "Start nginx" {
		t.Fatalf("failed task names = %v", out)
	}
}

func TestEvalGroupBy(t *testing.T) {
	e := NewEngine(sampleDoc())
	out, err := e.Eval("group_by(history, .host)")
	if err != nil {
		t.Fatal(err)
	}
	groups, ok := out.(map[string][]any)
	if !ok {
		t.Fatalf("group_by returned %T", out)
	}
	if len(groups["web1"]) != 2 || len(groups["web2"]) != 1 {
		t.Fatalf("group sizes = %d, %d", len(groups["web1"]), len(groups["web2"]))
	}
}

func TestEvalUnique(t *testing.T) {
	e := NewEngine(sampleDoc())
	out, err := e.Eval("unique(map(history, .host))")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, []any{"web1", "web2"}) {
		t.Fatalf("unique hosts = %v", out)
	}
}

func TestEvalAvg(t *testing.T) {
	e := NewEngine(sampleDoc())
	out, err := e.Eval("avg(map(history, .duration))")
	if err != nil {
		t.Fatal(err)
	}
	if out != 2.0 {
		t.Fatalf("avg duration = %v", out)
	}
}

func TestEvalAvgEmpty(t *testing.T) {
	e := NewEngine(map[string]any{"history": []any{}})
	out, err := e.Eval("avg(map(history, .duration))")
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("avg of empty = %v", out)
	}
}

func TestEvalCompileError(t *testing.T) {
	e := NewEngine(sampleDoc())
	if _, err := e.Eval("filter(history,"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestEvalCachesPrograms(t *testing.T) {
	e := NewEngine(sampleDoc())
	if _, err := e.Eval("count(history, .changed)"); err != nil {
		t.Fatal(err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("cache size = %d", len(e.cache))
	}
	out, err := e.Eval("count(history, .changed)")
	if err != nil {
		t.Fatal(err)
	}
	if out != 1 {
		t.Fatalf("changed count = %v", out)
	}
	if len(e.cache) != 1 {
		t.Fatalf("cache size after reuse = %d", len(e.cache))
	}
}

func TestRenderModes(t *testing.T) {
	value := map[string]any{"name": "web1", "ok": 2}

	compact, err := Render(value, ModeJSON)
	if err != nil {
		t.Fatal(err)
	}
	if compact != `{"name":"web1","ok":2}` {
		t.Fatalf("compact = %s", compact)
	}

	pretty, err := Render(value, ModePretty)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pretty, "\n  \"name\": \"web1\"") {
		t.Fatalf("pretty = %s", pretty)
	}

	y, err := Render(value, ModeYAML)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(y, "name: web1") {
		t.Fatalf("yaml = %s", y)
	}
}
