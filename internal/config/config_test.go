package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/module_federation/internal/federation/monitor"
)

const sampleYAML = `
registry:
  load_timeout: 5s
  cache_ttl: 10m
  known_modules: [core-data, scheduling, shop-floor, quality]
monitor:
  slow_call_threshold: 250ms
  memory_source: rss
  max_concurrent_loads: 4
  tier_acquire_timeout: 2s
logging:
  level: debug
  format: json
modules:
  scheduling:
    settings:
      horizon_days: 14
    budget:
      max_init_time: 500ms
      max_memory_mb: 32
  core-data:
    budget:
      warning_threshold: 0.5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "federation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Registry.LoadTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Registry.CacheTTL)
	assert.Equal(t, []string{"core-data", "scheduling", "shop-floor", "quality"}, cfg.Registry.KnownModules)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.SlowCallThreshold)
	assert.Equal(t, monitor.SourceRSS, cfg.Monitor.MemorySource)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// defaults survive for keys the file leaves out
	assert.Equal(t, 5*time.Second, cfg.Registry.RequestTimeout)
	assert.Equal(t, 1000, cfg.Monitor.LatencyWindow)

	reg := cfg.RegistryConfig()
	assert.Equal(t, 5*time.Second, reg.LoadTimeout)
	assert.Equal(t, 14, reg.ModuleConfig["scheduling"]["horizon_days"])
	_, hasCore := reg.ModuleConfig["core-data"]
	assert.False(t, hasCore, "modules without settings are omitted")

	mon := cfg.MonitorConfig()
	assert.Equal(t, 4, mon.TierConcurrency)
	assert.Equal(t, 2*time.Second, mon.TierAcquireTimeout)
	assert.Equal(t, 250*time.Millisecond, mon.SlowCallThreshold)

	lc := cfg.LoggerConfig("cmd")
	assert.Equal(t, "cmd", lc.Component)
	assert.Equal(t, "json", lc.Format)
}

func TestBudgets(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	budgets := cfg.Budgets()
	require.Len(t, budgets, 2)

	sched := budgets["scheduling"]
	assert.Equal(t, 500*time.Millisecond, sched.MaxInitTime)
	assert.Equal(t, 32*monitor.MiB, sched.MaxMemoryUsage)
	assert.Equal(t, monitor.DefaultBudget.WarningThreshold, sched.WarningThreshold)

	core := budgets["core-data"]
	assert.Equal(t, monitor.CoreBudget.MaxInitTime, core.MaxInitTime, "core modules inherit the core budget")
	assert.Equal(t, 0.5, core.WarningThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FEDERATION_LOAD_TIMEOUT", "2s")
	t.Setenv("FEDERATION_KNOWN_MODULES", "a;b")
	t.Setenv("FEDERATION_PRELOAD_RATE", "7.5")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Registry.LoadTimeout)
	assert.Equal(t, []string{"a", "b"}, cfg.Registry.KnownModules)
	assert.Equal(t, 7.5, cfg.Monitor.PreloadRate)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Registry, cfg.Registry)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Monitor, cfg.Monitor)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "registry: [unclosed"},
		{"zero timeout", "registry:\n  load_timeout: 0s\n"},
		{"memory source", "monitor:\n  memory_source: swap\n"},
		{"threshold", "modules:\n  x:\n    budget:\n      warning_threshold: 1.5\n"},
		{"sub-second sampling", "monitor:\n  memory_sample_interval: 500ms\n"},
		{"negative acquire timeout", "monitor:\n  tier_acquire_timeout: -1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, "monitor:\n  max_concurrent_loads: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "monitor:\n  memory_sample_interval: 250ms\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := Load(writeConfig(t, "monitor:\n  memory_sample_interval: 0s\n"))
	require.NoError(t, err, "zero disables sampling")
	assert.Zero(t, cfg.Monitor.MemorySampleInterval)
}

func TestEventsConfig(t *testing.T) {
	cfg := Default()
	ec := cfg.EventsConfig()
	assert.Equal(t, 5*time.Second, ec.RequestTimeout)
	assert.Equal(t, 1000, ec.HistorySize)
}
