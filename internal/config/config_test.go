package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lpops.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Scheduler.AdOptimizationHours)
	assert.Equal(t, 24, cfg.Scheduler.LPSuggestionHours)
	assert.Equal(t, 60, cfg.Scheduler.MetricsRefreshMins)
	assert.Equal(t, 30, cfg.Scheduler.AlertCheckMins)
	assert.Equal(t, 24, cfg.Scheduler.PhaseGateHours)
	assert.Equal(t, 168, cfg.Scheduler.CleanupHours)
	assert.Equal(t, 120, cfg.Automation.ActionTimeoutSecs)
	assert.Equal(t, 90, cfg.Automation.RetentionDays)
	assert.Equal(t, "json", cfg.Report.DefaultFormat)
	assert.Equal(t, 50, cfg.Report.HistoryLimit)
	assert.InDelta(t, 2.0, cfg.GoogleAds.RatePerSecond, 0.001)
	assert.Equal(t, "playbooks", cfg.Playbook.CatalogPath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/lpops
log:
  level: debug
  format: console
scheduler:
  ad_optimization_hours: 2
  alert_check_mins: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/lpops", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Scheduler.AdOptimizationHours)
	assert.Equal(t, 10, cfg.Scheduler.AlertCheckMins)
	// Defaults still apply for unset values
	assert.Equal(t, 24, cfg.Scheduler.LPSuggestionHours)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtemp(t)

	yaml := "store:\n  driver: sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LPOPS_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.Error(t, InitLogger(LogConfig{Level: "bogus", Format: "json"}))
}
