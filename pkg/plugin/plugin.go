// Package plugin carries the embedded Ansible strategy plugin and installs
// it where ansible-playbook can load it.
package plugin

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed strategy/playctl.py
var strategySource []byte

// Name is the strategy name plays select with `strategy: playctl` or the
// ANSIBLE_STRATEGY environment variable.
const Name = "playctl"

// DefaultDir returns the per-user Ansible strategy plugin directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ansible", "plugins", "strategy"), nil
}

// Install writes the strategy plugin into dir, creating it as needed.
// It returns the installed file path.
func Install(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plugin directory: %w", err)
	}
	path := filepath.Join(dir, Name+".py")
	if err := os.WriteFile(path, strategySource, 0o644); err != nil {
		return "", fmt.Errorf("install strategy plugin: %w", err)
	}
	return path, nil
}

// Ensure installs the plugin into dir unless an up-to-date copy is already
// present. It reports the plugin path and whether a write happened.
func Ensure(dir string) (string, bool, error) {
	path := filepath.Join(dir, Name+".py")
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, strategySource) {
		return path, false, nil
	}
	path, err = Install(dir)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}
