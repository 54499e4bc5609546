package script

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFullScript(t *testing.T) {
	src := `[
		{
			"task_name": "Install nginx",
			"actions": ["Pause", {"EditVar": {"key": "pkg_version", "value": "1.24"}}, "Continue"]
		},
		{
			"task_name": "Start service",
			"on_failure": true,
			"actions": ["AskAi", {"AssertAiContext": {"contains": "permission"}}, "ApplyFix", "Retry"]
		},
		{
			"task_name": "Smoke check",
			"actions": [{"ExecuteCommand": {"cmd": "curl -sf localhost"}}, "Resume"]
		}
	]`

	entries, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	first := entries[0]
	if first.TaskName != "Install nginx" || first.OnFailure {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if got := first.Actions[1]; got.Type != EditVar || got.Key != "pkg_version" || got.Value != "1.24" {
		t.Fatalf("unexpected EditVar action: %+v", got)
	}

	second := entries[1]
	if !second.OnFailure {
		t.Fatal("second entry should be on_failure")
	}
	if got := second.Actions[1]; got.Type != AssertAiContext || got.Contains != "permission" {
		t.Fatalf("unexpected AssertAiContext action: %+v", got)
	}
	if second.Actions[3].Type != Retry {
		t.Fatalf("unexpected final action: %+v", second.Actions[3])
	}

	third := entries[2]
	if got := third.Actions[0]; got.Type != ExecuteCommand || got.Cmd != "curl -sf localhost" {
		t.Fatalf("unexpected ExecuteCommand action: %+v", got)
	}
}

func TestParseBareAssertAiContext(t *testing.T) {
	entries, err := Parse([]byte(`[{"task_name": "t", "actions": ["AssertAiContext"]}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a := entries[0].Actions[0]
	if a.Type != AssertAiContext || a.Contains != "" {
		t.Fatalf("bare AssertAiContext should match any analysis: %+v", a)
	}
}

func TestParseRejectsUnknownAction(t *testing.T) {
	if _, err := Parse([]byte(`[{"task_name": "t", "actions": ["Teleport"]}]`)); err == nil {
		t.Fatal("unknown bare action accepted")
	}
	if _, err := Parse([]byte(`[{"task_name": "t", "actions": [{"Teleport": {}}]}]`)); err == nil {
		t.Fatal("unknown tagged action accepted")
	}
}

func TestParseRejectsMisshapenEntries(t *testing.T) {
	cases := []string{
		`{"task_name": "t", "actions": []}`,                          // not an array
		`[{"actions": ["Pause"]}]`,                                   // missing task_name
		`[{"task_name": "t"}]`,                                       // missing actions
		`[{"task_name": "", "actions": ["Pause"]}]`,                  // empty task name
		`[{"task_name": "t", "actions": [{"EditVar": {"key": ""}}]}]`, // missing value
	}
	for _, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("accepted invalid script: %s", src)
		}
	}
}

func TestActionRoundTrip(t *testing.T) {
	in := []Action{
		{Type: Pause},
		{Type: EditVar, Key: "should_fail", Value: false},
		{Type: ExecuteCommand, Cmd: "systemctl status nginx"},
		{Type: AssertAiContext, Contains: "timeout"},
		{Type: AssertAiContext},
		{Type: ApplyFix},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Action
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d actions, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Type != in[i].Type || out[i].Key != in[i].Key ||
			out[i].Cmd != in[i].Cmd || out[i].Contains != in[i].Contains {
			t.Errorf("action %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || !strings.Contains(err.Error(), "read script file") {
		t.Fatalf("got %v, want read error", err)
	}
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	src := `[{"task_name": "Deploy", "on_failure": true, "actions": ["AskAi", "ApplyFix", "Retry"]}]`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskName != "Deploy" || len(entries[0].Actions) != 3 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
