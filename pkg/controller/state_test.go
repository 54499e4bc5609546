package controller

import (
	"os"
	"reflect"
	"testing"

	"github.com/playctl/playctl/pkg/ai"
)

func stateWithVars() *State {
	s := NewState()
	s.SetTask("Configure app",
		map[string]any{"port": float64(8080), "app_name": "web"},
		map[string]any{"os_family": "Debian", "inventory_hostname": "web1"})
	return s
}

func TestFlattenedVarsAndLookup(t *testing.T) {
	s := stateWithVars()

	want := []string{
		"ansible_facts.inventory_hostname",
		"ansible_facts.os_family",
		"app_name",
		"port",
	}
	if got := s.FlattenedVars(); !reflect.DeepEqual(got, want) {
		t.Errorf("FlattenedVars() = %v, want %v", got, want)
	}

	if v, ok := s.VarValue("port"); !ok || v != float64(8080) {
		t.Errorf("VarValue(port) = %v, %v", v, ok)
	}
	if v, ok := s.VarValue("ansible_facts.os_family"); !ok || v != "Debian" {
		t.Errorf("VarValue(fact) = %v, %v", v, ok)
	}
	if _, ok := s.VarValue("missing"); ok {
		t.Error("missing variable resolved")
	}
}

func TestSetTaskRegistersHostFromFacts(t *testing.T) {
	s := stateWithVars()
	if _, ok := s.Hosts["web1"]; !ok {
		t.Error("host not registered from inventory_hostname fact")
	}
	if _, ok := s.HostFacts["web1"]; !ok {
		t.Error("host facts not stored")
	}
}

func TestEditFlowApply(t *testing.T) {
	s := stateWithVars()

	// Idle cannot jump straight to editing.
	if err := s.PrepareEdit("port"); err == nil {
		t.Fatal("PrepareEdit allowed from Idle")
	}

	if err := s.BeginSelect(); err != nil {
		t.Fatal(err)
	}
	s.Edit.Filter = "po"
	if got := s.FilteredVars(); len(got) != 1 || got[0] != "port" {
		t.Fatalf("FilteredVars() = %v", got)
	}

	if err := s.PrepareEdit("port"); err != nil {
		t.Fatal(err)
	}
	path := s.Edit.TempFile
	if s.Edit.Phase != EditEditing || path == "" {
		t.Fatalf("unexpected edit state: %+v", s.Edit)
	}

	if err := os.WriteFile(path, []byte("9090"), 0o644); err != nil {
		t.Fatal(err)
	}
	key, val, err := s.ApplyEdit()
	if err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if key != "port" || val != float64(9090) {
		t.Errorf("ApplyEdit = %q, %v", key, val)
	}
	if s.Edit.Phase != EditIdle {
		t.Error("edit not returned to Idle")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file still on disk after apply")
	}
}

func TestEditFlowParseFailureCleansUp(t *testing.T) {
	s := stateWithVars()
	if err := s.BeginSelect(); err != nil {
		t.Fatal(err)
	}
	if err := s.PrepareEdit("app_name"); err != nil {
		t.Fatal(err)
	}
	path := s.Edit.TempFile
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.ApplyEdit(); err == nil {
		t.Fatal("invalid JSON accepted")
	}
	if s.Edit.Phase != EditIdle {
		t.Error("edit not returned to Idle after parse failure")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file still on disk after parse failure")
	}
}

func TestEditFlowCancelCleansUp(t *testing.T) {
	s := stateWithVars()
	if err := s.BeginSelect(); err != nil {
		t.Fatal(err)
	}
	if err := s.PrepareEdit("port"); err != nil {
		t.Fatal(err)
	}
	path := s.Edit.TempFile

	s.CancelEdit()

	if s.Edit.Phase != EditIdle {
		t.Error("cancel did not return to Idle")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file still on disk after cancel")
	}
}

func TestPrepareEditUnknownVariable(t *testing.T) {
	s := stateWithVars()
	if err := s.BeginSelect(); err != nil {
		t.Fatal(err)
	}
	if err := s.PrepareEdit("no_such_var"); err == nil {
		t.Fatal("unknown variable accepted")
	}
	if s.Edit.Phase != EditSelecting {
		t.Error("failed PrepareEdit should stay in selection")
	}
}

func TestToggleBreakpoint(t *testing.T) {
	s := NewState()
	if !s.ToggleBreakpoint("Deploy") {
		t.Error("first toggle should set")
	}
	if !s.Breakpoints["Deploy"] {
		t.Error("breakpoint not set")
	}
	if s.ToggleBreakpoint("Deploy") {
		t.Error("second toggle should clear")
	}
	if s.Breakpoints["Deploy"] {
		t.Error("breakpoint not cleared")
	}
}

func TestAttachAnalysisPicksMostRecent(t *testing.T) {
	s := NewState()
	s.RecordTaskResult("Deploy", "web1", false, true, 1.0, "", nil, nil)
	s.RecordTaskResult("Other", "web1", false, false, 1.0, "", nil, nil)
	s.RecordTaskResult("Deploy", "web2", false, true, 1.0, "", nil, nil)

	a := &ai.Analysis{Analysis: "disk full"}
	s.AttachAnalysis("Deploy", a)

	if s.History[2].Analysis != a {
		t.Error("analysis not attached to most recent matching entry")
	}
	if s.History[0].Analysis != nil || s.History[1].Analysis != nil {
		t.Error("analysis attached to the wrong entries")
	}
}

func TestHostStatsMutuallyExclusive(t *testing.T) {
	s := NewState()
	s.RecordTaskResult("a", "h", true, true, 0, "", nil, nil)
	hs := s.Hosts["h"]
	if hs.FailedTasks != 1 || hs.ChangedTasks != 0 || hs.OkTasks != 0 {
		t.Errorf("failed+changed result must count only as failed: %+v", hs)
	}
}
