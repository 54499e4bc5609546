// Package config resolves runtime settings in three layers: built-in
// defaults, then ~/.config/playctl/config.yaml, then PLAYCTL_* environment
// variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSocketPath = "/tmp/playctl.sock"
	DefaultAPIBase    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4"
)

type Config struct {
	SocketPath string `yaml:"socket_path"`
	BindAddr   string `yaml:"bind_addr"`
	Secret     string `yaml:"secret_token"`
	ScriptPath string `yaml:"script_path"`

	Headless    bool `yaml:"headless"`
	AutoAnalyze bool `yaml:"auto_analyze"`

	OpenAIAPIKey string  `yaml:"openai_api_key"`
	APIBase      string  `yaml:"api_base"`
	Model        string  `yaml:"model"`
	QuotaTokens  int     `yaml:"quota_limit_tokens"`
	QuotaUSD     float64 `yaml:"quota_limit_usd"`

	LogLevel string `yaml:"log_level"`
}

// AIEnabled reports whether an AI client should be constructed: a key is
// set, or a non-default base URL points at a local model.
func (c *Config) AIEnabled() bool {
	return c.OpenAIAPIKey != "" || c.APIBase != DefaultAPIBase
}

// Dir returns the state directory (~/.config/playctl), creating it if
// needed. It holds config.yaml, quota.json, session archives, and the AI
// interaction log.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "playctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Load resolves the effective configuration.
func Load() (*Config, error) {
	cfg := &Config{
		SocketPath: DefaultSocketPath,
		APIBase:    DefaultAPIBase,
		Model:      DefaultModel,
		LogLevel:   "info",
	}

	dir, err := Dir()
	if err == nil {
		if err := cfg.loadFile(filepath.Join(dir, "config.yaml")); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	setString(&c.SocketPath, "PLAYCTL_SOCKET")
	setString(&c.BindAddr, "PLAYCTL_BIND_ADDR")
	setString(&c.Secret, "PLAYCTL_SECRET")
	setString(&c.ScriptPath, "PLAYCTL_TEST_SCRIPT")
	setBool(&c.Headless, "PLAYCTL_HEADLESS")
	setBool(&c.AutoAnalyze, "PLAYCTL_AUTO_ANALYZE")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIAPIKey, "PLAYCTL_OPENAI_API_KEY")
	setString(&c.APIBase, "PLAYCTL_API_BASE")
	setString(&c.Model, "PLAYCTL_MODEL")
	setString(&c.LogLevel, "PLAYCTL_LOG_LEVEL")
	setInt(&c.QuotaTokens, "PLAYCTL_QUOTA_TOKENS")
	setFloat(&c.QuotaUSD, "PLAYCTL_QUOTA_USD")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v != "" && v != "0" && !strings.EqualFold(v, "false")
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
