package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// QuotaTracker accumulates daily token and estimated dollar usage, persisted
// across runs so the daily cap survives restarts. Counters reset on the first
// use of a new calendar day (UTC).
type QuotaTracker struct {
	mu   sync.Mutex
	path string

	limitTokens int
	limitUSD    float64

	state quotaState
}

type quotaState struct {
	UsageTodayTokens int       `json:"usage_today_tokens"`
	CostTodayUSD     float64   `json:"cost_today_usd"`
	LastReset        time.Time `json:"last_reset"`
	TotalTokens      int       `json:"total_tokens_all_time"`
	TotalCostUSD     float64   `json:"total_cost_all_time_usd"`
}

// LoadQuota reads quota.json from stateDir, starting fresh if absent. An
// empty stateDir disables persistence but still enforces limits in memory.
func LoadQuota(stateDir string, limitTokens int, limitUSD float64) (*QuotaTracker, error) {
	t := &QuotaTracker{
		limitTokens: limitTokens,
		limitUSD:    limitUSD,
		state:       quotaState{LastReset: time.Now().UTC()},
	}
	if stateDir == "" {
		return t, nil
	}
	t.path = filepath.Join(stateDir, "quota.json")

	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &t.state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", t.path, err)
	}
	t.resetIfStale()
	return t, nil
}

// CheckLimit fails when today's usage already meets a configured cap.
func (t *QuotaTracker) CheckLimit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfStale()
	if t.limitTokens > 0 && t.state.UsageTodayTokens >= t.limitTokens {
		return fmt.Errorf("daily token quota exceeded (%d / %d)", t.state.UsageTodayTokens, t.limitTokens)
	}
	if t.limitUSD > 0 && t.state.CostTodayUSD >= t.limitUSD {
		return fmt.Errorf("daily cost quota exceeded ($%.2f / $%.2f)", t.state.CostTodayUSD, t.limitUSD)
	}
	return nil
}

// AddUsage records spent tokens and persists the updated counters.
func (t *QuotaTracker) AddUsage(tokens int, model string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfStale()

	cost := costUSD(tokens, model)
	t.state.UsageTodayTokens += tokens
	t.state.CostTodayUSD += cost
	t.state.TotalTokens += tokens
	t.state.TotalCostUSD += cost

	return t.save()
}

// UsageToday returns today's token count and estimated cost.
func (t *QuotaTracker) UsageToday() (int, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfStale()
	return t.state.UsageTodayTokens, t.state.CostTodayUSD
}

func (t *QuotaTracker) resetIfStale() {
	now := time.Now().UTC()
	if t.state.LastReset.UTC().Truncate(24*time.Hour) != now.Truncate(24*time.Hour) {
		t.state.UsageTodayTokens = 0
		t.state.CostTodayUSD = 0
		t.state.LastReset = now
	}
}

func (t *QuotaTracker) save() error {
	if t.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.path, data, 0o644)
}

// Blended per-token rates; local or unknown models cost nothing.
func costUSD(tokens int, model string) float64 {
	switch {
	case strings.Contains(model, "gpt-4"):
		return float64(tokens) * 0.00002
	case strings.Contains(model, "gpt-3.5"):
		return float64(tokens) * 0.000001
	default:
		return 0
	}
}
