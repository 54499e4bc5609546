package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/playctl/playctl/pkg/controller"
)

func sampleState() *controller.State {
	s := controller.NewState()
	s.SetTask("Restart service", map[string]any{"svc": "nginx"},
		map[string]any{"inventory_hostname": "web1"})
	s.RecordTaskResult("Install nginx", "web1", true, false, 2.5, "", nil, nil)
	s.RecordTaskResult("Restart service", "web1", false, true, 0.4, "permission denied", nil, nil)
	s.SetUnreachable("Ping", "db1", "timed out", nil)
	s.Breakpoints["Restart service"] = true
	s.PlayRecap = map[string]any{"web1": map[string]any{"ok": float64(1)}}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json.gz")
	sess := FromState(sampleState())
	if sess.ID == "" {
		t.Fatal("session has no run ID")
	}
	if err := sess.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Archive must actually be gzip.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		t.Fatal("archive is not gzip-compressed")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != sess.ID {
		t.Errorf("run ID changed: %q vs %q", loaded.ID, sess.ID)
	}
	if len(loaded.History) != 3 {
		t.Fatalf("got %d history entries, want 3", len(loaded.History))
	}
	if loaded.History[1].Error != "permission denied" {
		t.Errorf("history detail lost: %+v", loaded.History[1])
	}
	if loaded.Hosts["web1"] == nil || loaded.Hosts["web1"].ChangedTasks != 1 {
		t.Errorf("host stats lost: %+v", loaded.Hosts["web1"])
	}
}

func TestRestoreTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json.gz")
	if err := FromState(sampleState()).Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	s := controller.NewState()
	loaded.RestoreTo(s)

	if s.CurrentTask != "Restart service" {
		t.Errorf("current task = %q", s.CurrentTask)
	}
	if len(s.History) != 3 {
		t.Errorf("got %d history entries, want 3", len(s.History))
	}
	if !s.Unreachable["db1"] {
		t.Error("unreachable host lost")
	}
	if !s.Breakpoints["Restart service"] {
		t.Error("breakpoints lost")
	}
}

func TestHostFactsSurviveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json.gz")
	if err := FromState(sampleState()).Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	s := controller.NewState()
	loaded.RestoreTo(s)

	facts, ok := s.HostFacts["web1"].(map[string]any)
	if !ok {
		t.Fatalf("host facts lost: %#v", s.HostFacts)
	}
	if facts["inventory_hostname"] != "web1" {
		t.Errorf("unexpected facts for web1: %v", facts)
	}

	doc, err := loaded.Document()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["host_facts"].(map[string]any); !ok {
		t.Errorf("document host_facts malformed: %v", doc["host_facts"])
	}
}

func TestLoadRejectsNonGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.json")
	if err := os.WriteFile(path, []byte(`{"history": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("plain JSON accepted as session archive")
	}
}

func TestDocument(t *testing.T) {
	doc, err := FromState(sampleState()).Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	history, ok := doc["history"].([]any)
	if !ok || len(history) != 3 {
		t.Fatalf("document history malformed: %v", doc["history"])
	}
	first, ok := history[0].(map[string]any)
	if !ok || first["name"] != "Install nginx" {
		t.Errorf("unexpected first entry: %v", history[0])
	}
}
