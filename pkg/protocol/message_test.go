package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// TestDecodePluginRecords parses records exactly as the strategy plugin
// emits them.
func TestDecodePluginRecords(t *testing.T) {
	cases := []struct {
		line string
		kind string
	}{
		{`{"Handshake": {"token": "s3cret"}}`, "Handshake"},
		{`{"Handshake": {"token": null}}`, "Handshake"},
		{`{"PlayStart": {"name": "Deploy", "host_pattern": "web*"}}`, "PlayStart"},
		{`{"TaskStart": {"name": "Install package", "task_vars": {"pkg": "nginx"}}}`, "TaskStart"},
		{`{"TaskFail": {"name": "Install package", "result": {"msg": "boom"}}}`, "TaskFail"},
		{`{"TaskResult": {"name": "Install package", "host": "web1", "changed": true, "failed": false, "verbose_result": {"stdout": "ok"}}}`, "TaskResult"},
		{`{"TaskUnreachable": {"name": "Ping", "host": "web2", "error": "timeout", "result": {}}}`, "TaskUnreachable"},
		{`{"PlayRecap": {"stats": {"ok": {"web1": 3}}}}`, "PlayRecap"},
	}
	for _, tc := range cases {
		m, err := Decode([]byte(tc.line))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.line, err)
		}
		if Kind(m) != tc.kind {
			t.Errorf("Decode(%s) kind = %s, want %s", tc.line, Kind(m), tc.kind)
		}
	}
}

// TestEncodeUnitKinds verifies control commands encode as bare JSON strings,
// which is what the plugin's command reader expects.
func TestEncodeUnitKinds(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{Proceed{}, `"Proceed"`},
		{Retry{}, `"Retry"`},
		{Continue{}, `"Continue"`},
	}
	for _, tc := range cases {
		b, err := Encode(tc.msg)
		if err != nil {
			t.Fatalf("Encode(%s): %v", Kind(tc.msg), err)
		}
		if got := strings.TrimSuffix(string(b), "\n"); got != tc.want {
			t.Errorf("Encode(%s) = %s, want %s", Kind(tc.msg), got, tc.want)
		}
		if !bytes.HasSuffix(b, []byte("\n")) {
			t.Errorf("Encode(%s) missing trailing newline", Kind(tc.msg))
		}
	}
}

func TestEncodeModifyVar(t *testing.T) {
	b, err := Encode(ModifyVar{Key: "should_fail", Value: false})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(b)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	mv, ok := m.(ModifyVar)
	if !ok {
		t.Fatalf("round trip kind = %s, want ModifyVar", Kind(m))
	}
	if mv.Key != "should_fail" || mv.Value != false {
		t.Errorf("round trip payload = %+v", mv)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		`not json`,
		`{"TaskStart": {}, "TaskFail": {}}`,
		`{"NoSuchKind": {}}`,
		`"NoSuchUnit"`,
		`{}`,
	} {
		if _, err := Decode([]byte(line)); err == nil {
			t.Errorf("Decode(%s) succeeded, want error", line)
		}
	}
}

// TestReaderBuffersPartialLines verifies the reader only yields complete
// lines and reports clean EOF.
func TestReaderBuffersPartialLines(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"PlayStart": {"name": "p", "host_pattern": "all"}}` + "\n")
	buf.WriteString(`"Proceed"` + "\n")

	r := NewReader(&buf)

	m, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(PlayStart); !ok {
		t.Fatalf("first message kind = %s", Kind(m))
	}
	m, err = r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(Proceed); !ok {
		t.Fatalf("second message kind = %s", Kind(m))
	}
	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("want io.EOF at end of stream, got %v", err)
	}
}

func TestReaderTruncatedLine(t *testing.T) {
	r := NewReader(strings.NewReader(`{"PlayStart": {"name": "p"`))
	if _, err := r.Read(); err == nil || err == io.EOF {
		t.Fatalf("truncated line: want transport error, got %v", err)
	}
}

func TestExecutionDetailsAccessors(t *testing.T) {
	d := NewExecutionDetails(map[string]any{
		"stdout": "hello",
		"stderr": "oops",
		"msg":    "non-zero return code",
		"invocation": map[string]any{
			"module_args": map[string]any{
				"cmd": []any{"ls", "-l"},
			},
		},
	})
	if d.Stdout() != "hello" || d.Stderr() != "oops" {
		t.Errorf("stdout/stderr = %q/%q", d.Stdout(), d.Stderr())
	}
	if d.Msg() != "non-zero return code" {
		t.Errorf("msg = %q", d.Msg())
	}
	if d.Cmd() != "ls -l" {
		t.Errorf("cmd = %q", d.Cmd())
	}
}
