package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APCA_API_KEY_ID", "test-key")
	t.Setenv("APCA_API_SECRET_KEY", "test-secret")
	t.Setenv("APCA_API_BASE_URL", "https://paper-api.alpaca.markets")
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()

	assert.Equal(t, "test-gemini-key", cfg.GeminiAPIKey)
	assert.Equal(t, 4, cfg.ResearchConcurrency)
	assert.Equal(t, 120, cfg.TierTimeoutSec)
	assert.Equal(t, "30 15 * * MON-FRI", cfg.CronSchedule)
	assert.Equal(t, "orders.db", cfg.OrderStorePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Watchlist)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RESEARCH_CONCURRENCY", "8")
	t.Setenv("TIER_TIMEOUT_SEC", "30")
	t.Setenv("WATCHLIST_TICKERS", "aapl, msft ,NVDA")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, 8, cfg.ResearchConcurrency)
	assert.Equal(t, 30, cfg.TierTimeoutSec)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.Watchlist)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MalformedIntFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RESEARCH_CONCURRENCY", "not-a-number")

	cfg := Load()
	assert.Equal(t, 4, cfg.ResearchConcurrency)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"AAPL"}, splitList("aapl"))
	assert.Equal(t, []string{"AAPL", "MSFT"}, splitList(" aapl ,, msft "))
}
