package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
engine:
  scan_interval: 2m
  min_volume: 250
  max_days_to_expiry: 3
  initial_bankroll: 500
strategies:
  - name: weather-high
    enabled: true
    dry_run: true
    series: [KXHIGH]
    max_position: 25
    min_ev_threshold: 0.05
  - name: crypto
    enabled: false
    series: [KXBTC, KXETH]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Engine.ScanInterval.Std())
	assert.Equal(t, 250, cfg.Engine.MinVolume)
	assert.Equal(t, "500", cfg.Engine.InitialBankroll.String())

	enabled := cfg.EnabledStrategies()
	require.Len(t, enabled, 1)
	assert.Equal(t, "weather-high", enabled[0].Name)
	assert.True(t, enabled[0].DryRun)
	assert.Equal(t, "25", enabled[0].MaxPosition.String())
	assert.InDelta(t, 0.05, enabled[0].MinEVThreshold, 1e-9)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EDGESCAN_SCAN_INTERVAL", "30s")
	t.Setenv("EDGESCAN_MIN_VOLUME", "1000")
	t.Setenv("EDGESCAN_DATA_DIR", "/tmp/edgescan")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Engine.ScanInterval.Std())
	assert.Equal(t, 1000, cfg.Engine.MinVolume)
	assert.Equal(t, "/tmp/edgescan", cfg.DataDir)
}

func TestGlobalDryRunOverride(t *testing.T) {
	live := `
strategies:
  - name: weather-high
    enabled: true
    dry_run: false
    series: [KXHIGH]
`
	t.Setenv("EDGESCAN_DRY_RUN", "true")

	cfg, err := Load(writeConfig(t, live))
	require.NoError(t, err)
	assert.True(t, cfg.EnabledStrategies()[0].DryRun)
}

func TestLiveStrategyRequiresAPIKey(t *testing.T) {
	live := `
strategies:
  - name: weather-high
    enabled: true
    dry_run: false
    series: [KXHIGH]
`
	t.Setenv("KALSHI_API_KEY", "")

	_, err := Load(writeConfig(t, live))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNoEnabledStrategies(t *testing.T) {
	_, err := Load(writeConfig(t, "strategies: []\n"))
	assert.ErrorIs(t, err, ErrNoStrategies)
}

func TestBadThreshold(t *testing.T) {
	bad := `
strategies:
  - name: weather-high
    enabled: true
    dry_run: true
    series: [KXHIGH]
    min_ev_threshold: 1.5
`
	_, err := Load(writeConfig(t, bad))
	assert.Error(t, err)
}
