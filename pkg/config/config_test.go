package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "5m", cfg.Binance.Timeframe)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "trend.signals", cfg.Kafka.SignalTopic)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Strategy.SymbolList())
	assert.Equal(t, 50, cfg.Strategy.WarmupBars)
	assert.Equal(t, 25.0, cfg.Filters.ADXMin)
	assert.Equal(t, 1000.0, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 0.75, cfg.Correlation.Threshold)
	assert.Equal(t, "1h", cfg.HTF.Timeframe)
	assert.Equal(t, 0.006, cfg.Position.TakeProfitPercent)
	assert.Equal(t, 1000.0, cfg.Backtest.InitialBalance)
	assert.Equal(t, "data/klines", cfg.Backtest.DataDir)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
environment: production
server:
  port: 9090
strategy:
  symbols: "SOLUSDT"
  leverage: 5
risk:
  daily_loss_limit: 250
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"SOLUSDT"}, cfg.Strategy.SymbolList())
	assert.Equal(t, 5.0, cfg.Strategy.Leverage)
	assert.Equal(t, 250.0, cfg.Risk.DailyLossLimit)
	// untouched sections still get their defaults
	assert.Equal(t, 0.003, cfg.Risk.StopLossPercent)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
strategy:
  leverage: 0.5
`))
	assert.Error(t, err, "sub-1 leverage must be rejected")

	_, err = Load(writeConfig(t, `
environment: test
kafka:
  enabled: true
`))
	assert.Error(t, err, "kafka without brokers must be rejected")

	_, err = Load(writeConfig(t, `
environment: test
risk:
  max_total_exposure_percent: 1.5
`))
	assert.Error(t, err, "exposure above 100% must be rejected")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "missing file must be reported")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "ADAUSDT,DOTUSDT")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ADAUSDT", "DOTUSDT"}, cfg.Strategy.SymbolList())
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}
