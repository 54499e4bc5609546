package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"gopkg.in/yaml.v3"
)

// Mode selects how query results are rendered.
type Mode int

const (
	ModePretty Mode = iota
	ModeJSON
	ModeYAML
)

// ParseMode maps a --format flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "pretty-json", "pretty", "":
		return ModePretty, nil
	case "json":
		return ModeJSON, nil
	case "yaml":
		return ModeYAML, nil
	}
	return ModePretty, fmt.Errorf("unknown format %q (supported: json, pretty-json, yaml)", s)
}

// REPL is an interactive query prompt over one session document.
type REPL struct {
	engine *Engine
	mode   Mode
	out    io.Writer
}

func NewREPL(engine *Engine, out io.Writer) *REPL {
	return &REPL{engine: engine, out: out}
}

// Run reads queries until EOF or .exit. Interrupt clears the current line;
// a second interrupt on an empty line exits.
func (r *REPL) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "query> ",
		AutoComplete:    replCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		return fmt.Errorf("start query prompt: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if r.command(line) {
				return nil
			}
			continue
		}
		r.eval(line)
	}
}

// command handles a dot-command and reports whether the REPL should exit.
func (r *REPL) command(line string) bool {
	switch line {
	case ".exit", ".quit":
		return true
	case ".json":
		r.mode = ModeJSON
		fmt.Fprintln(r.out, "output: compact json")
	case ".pretty":
		r.mode = ModePretty
		fmt.Fprintln(r.out, "output: pretty json")
	case ".yaml":
		r.mode = ModeYAML
		fmt.Fprintln(r.out, "output: yaml")
	case ".help":
		fmt.Fprint(r.out, helpText)
	default:
		fmt.Fprintf(r.out, "unknown command %q (try .help)\n", line)
	}
	return false
}

func (r *REPL) eval(query string) {
	result, err := r.engine.Eval(query)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	rendered, err := Render(result, r.mode)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	fmt.Fprintln(r.out, rendered)
}

// Render formats a query result in the given output mode.
func Render(result any, mode Mode) (string, error) {
	switch mode {
	case ModeJSON:
		data, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("render result: %w", err)
		}
		return string(data), nil
	case ModeYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("render result: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("render result: %w", err)
		}
		return string(data), nil
	}
}

func replCompleter() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".json"),
		readline.PcItem(".pretty"),
		readline.PcItem(".yaml"),
		readline.PcItem(".exit"),
		readline.PcItem("history"),
		readline.PcItem("hosts"),
		readline.PcItem("host_facts"),
		readline.PcItem("play_recap"),
		readline.PcItem("unreachable_hosts"),
		readline.PcItem("filter("),
		readline.PcItem("map("),
		readline.PcItem("group_by("),
		readline.PcItem("unique("),
		readline.PcItem("count("),
		readline.PcItem("sum("),
		readline.PcItem("avg("),
		readline.PcItem("min("),
		readline.PcItem("max("),
	)
}

const helpText = `Queries run against the archived session document.

Fields:
  history            task-by-task run history
  hosts              per-host ok/changed/failed counters
  host_facts         last gathered facts per host
  play_recap         final recap from the playbook run
  unreachable_hosts  hosts that became unreachable

Examples:
  filter(history, .failed)
  map(history, .name)
  group_by(history, .host)
  count(history, .changed)
  avg(map(history, .duration))
  unique(map(history, .host))

Commands:
  .pretty   pretty-printed json output (default)
  .json     compact json output
  .yaml     yaml output
  .help     this text
  .exit     leave the prompt
`
