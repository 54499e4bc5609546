// Package session archives a finished (or interrupted) run as a gzipped JSON
// document so it can be re-opened for replay, querying, and reporting.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/playctl/playctl/pkg/controller"
)

type Session struct {
	ID          string                            `json:"id"`
	Timestamp   time.Time                         `json:"timestamp"`
	CurrentTask string                            `json:"current_task,omitempty"`
	TaskVars    any                               `json:"task_vars,omitempty"`
	Facts       any                               `json:"facts,omitempty"`
	History     []controller.TaskHistory          `json:"history"`
	Hosts       map[string]*controller.HostStatus `json:"hosts"`
	HostFacts   map[string]any                    `json:"host_facts,omitempty"`
	PlayRecap   any                               `json:"play_recap,omitempty"`
	Unreachable []string                          `json:"unreachable_hosts,omitempty"`
	Breakpoints []string                          `json:"breakpoints,omitempty"`
}

// FromState snapshots the controller state into a new session with a fresh
// run ID.
func FromState(s *controller.State) *Session {
	sess := &Session{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		CurrentTask: s.CurrentTask,
		TaskVars:    s.TaskVars,
		Facts:       s.Facts,
		History:     s.History,
		Hosts:       s.Hosts,
		HostFacts:   s.HostFacts,
		PlayRecap:   s.PlayRecap,
	}
	for h := range s.Unreachable {
		sess.Unreachable = append(sess.Unreachable, h)
	}
	for b := range s.Breakpoints {
		sess.Breakpoints = append(sess.Breakpoints, b)
	}
	return sess
}

// RestoreTo loads the archived run back into a controller state for replay.
func (sess *Session) RestoreTo(s *controller.State) {
	s.CurrentTask = sess.CurrentTask
	s.TaskVars = sess.TaskVars
	s.Facts = sess.Facts
	s.History = sess.History
	if sess.Hosts != nil {
		s.Hosts = sess.Hosts
	}
	if sess.HostFacts != nil {
		s.HostFacts = sess.HostFacts
	}
	s.PlayRecap = sess.PlayRecap
	for _, h := range sess.Unreachable {
		s.Unreachable[h] = true
	}
	for _, b := range sess.Breakpoints {
		s.Breakpoints[b] = true
	}
}

// Save writes the session as gzipped JSON.
func (sess *Session) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(sess); err != nil {
		zw.Close()
		return fmt.Errorf("encode session: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush session: %w", err)
	}
	return f.Close()
}

// Load reads a gzipped session archive.
func Load(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read session header: %w", err)
	}
	defer zr.Close()

	var sess Session
	if err := json.NewDecoder(zr).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Document renders the session as a generic JSON value for query evaluation.
func (sess *Session) Document() (map[string]any, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
