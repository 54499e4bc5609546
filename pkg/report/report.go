// Package report renders an execution report from controller state, as
// markdown for humans and JSON for machines.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/playctl/playctl/pkg/controller"
)

// Generator renders reports over a finished (or in-flight) run.
type Generator struct {
	state *controller.State
	now   func() time.Time
}

func NewGenerator(state *controller.State) *Generator {
	return &Generator{state: state, now: time.Now}
}

// Markdown renders the full run report: host summary, task history with
// errors and AI analyses, drift summary, and the final recap.
func (g *Generator) Markdown() string {
	var md strings.Builder

	md.WriteString("# Playctl Execution Report\n\n")
	fmt.Fprintf(&md, "**Date:** %s\n\n", g.now().Format("2006-01-02 15:04:05"))

	md.WriteString("## Host Summary\n\n")
	if len(g.state.Hosts) == 0 {
		md.WriteString("_No host data captured._\n\n")
	} else {
		md.WriteString("| Host | OK | Changed | Failed |\n")
		md.WriteString("|---|---|---|---|\n")
		for _, host := range sortedHosts(g.state.Hosts) {
			fmt.Fprintf(&md, "| %s | %d | %d | %d |\n",
				host.Name, host.OkTasks, host.ChangedTasks, host.FailedTasks)
		}
		md.WriteString("\n")
	}

	md.WriteString("## Task Execution History\n\n")
	if len(g.state.History) == 0 {
		md.WriteString("_No tasks executed._\n\n")
	} else {
		for i, task := range g.state.History {
			status := taskStatus(task)
			fmt.Fprintf(&md, "### %d. %s [%s]\n", i+1, task.Name, status)
			fmt.Fprintf(&md, "- **Host:** %s\n", task.Host)
			fmt.Fprintf(&md, "- **Status:** %s %s\n", statusIcon(task), status)
			if task.Error != "" {
				fmt.Fprintf(&md, "- **Error:**\n```\n%s\n```\n", task.Error)
			}
			if task.VerboseResult != nil {
				md.WriteString("- **Details captured** (see the JSON export for full data)\n")
			}
			if task.Analysis != nil {
				md.WriteString("\n#### AI Analysis\n")
				fmt.Fprintf(&md, "> %s\n\n", task.Analysis.Analysis)
				if fix := task.Analysis.Fix; fix != nil {
					md.WriteString("**Suggested Fix:**\n")
					fmt.Fprintf(&md, "- Variable: `%s`\n", fix.Key)
					fmt.Fprintf(&md, "- Value: `%v`\n", fix.Value)
				}
			}
			md.WriteString("\n")
		}
	}

	if drift := g.Drift(); len(drift) > 0 {
		md.WriteString("## Drift Summary\n\n")
		md.WriteString("Tasks that changed managed hosts:\n\n")
		for _, task := range drift {
			fmt.Fprintf(&md, "- %s (%s)\n", task.Name, task.Host)
		}
		md.WriteString("\n")
	}

	if g.state.PlayRecap != nil {
		md.WriteString("## Play Recap\n\n")
		md.WriteString("```json\n")
		recap, err := json.MarshalIndent(g.state.PlayRecap, "", "  ")
		if err == nil {
			md.Write(recap)
		}
		md.WriteString("\n```\n\n")
	}

	return md.String()
}

// jsonReport is the machine-readable export shape.
type jsonReport struct {
	GeneratedAt time.Time                         `json:"generated_at"`
	Hosts       map[string]*controller.HostStatus `json:"hosts"`
	History     []controller.TaskHistory          `json:"history"`
	Drift       []controller.TaskHistory          `json:"drift"`
	PlayRecap   any                               `json:"play_recap,omitempty"`
	Unreachable []string                          `json:"unreachable,omitempty"`
}

// JSON renders the report as indented JSON.
func (g *Generator) JSON() ([]byte, error) {
	var unreachable []string
	for host := range g.state.Unreachable {
		unreachable = append(unreachable, host)
	}
	sort.Strings(unreachable)

	return json.MarshalIndent(jsonReport{
		GeneratedAt: g.now(),
		Hosts:       g.state.Hosts,
		History:     g.state.History,
		Drift:       g.Drift(),
		PlayRecap:   g.state.PlayRecap,
		Unreachable: unreachable,
	}, "", "  ")
}

// Drift lists the history entries that changed a host.
func (g *Generator) Drift() []controller.TaskHistory {
	var drift []controller.TaskHistory
	for _, task := range g.state.History {
		if task.Changed && !task.Failed {
			drift = append(drift, task)
		}
	}
	return drift
}

// DriftSummary is a one-paragraph recap suitable for printing at exit.
func (g *Generator) DriftSummary() string {
	drift := g.Drift()
	failed := 0
	for _, task := range g.state.History {
		if task.Failed {
			failed++
		}
	}
	if len(drift) == 0 && failed == 0 {
		return "No drift: all tasks reported ok."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) changed hosts, %d failed.", len(drift), failed)
	for _, task := range drift {
		fmt.Fprintf(&b, "\n  changed: %s (%s)", task.Name, task.Host)
	}
	return b.String()
}

// SaveMarkdown writes the markdown report to path.
func (g *Generator) SaveMarkdown(path string) error {
	if err := os.WriteFile(path, []byte(g.Markdown()), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// SaveJSON writes the JSON report to path.
func (g *Generator) SaveJSON(path string) error {
	data, err := g.JSON()
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func sortedHosts(hosts map[string]*controller.HostStatus) []*controller.HostStatus {
	out := make([]*controller.HostStatus, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func taskStatus(task controller.TaskHistory) string {
	switch {
	case task.Failed:
		return "FAILED"
	case task.Changed:
		return "CHANGED"
	default:
		return "OK"
	}
}

func statusIcon(task controller.TaskHistory) string {
	switch {
	case task.Failed:
		return "✗"
	case task.Changed:
		return "~"
	default:
		return "✓"
	}
}
