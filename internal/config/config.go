// Package config loads the federation configuration from a YAML file with
// environment overrides and translates it into component configs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/module_federation/internal/federation/events"
	"github.com/R3E-Network/module_federation/internal/federation/monitor"
	"github.com/R3E-Network/module_federation/internal/federation/registry"
	"github.com/R3E-Network/module_federation/pkg/logger"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultPath is the configuration file read by LoadDefault.
var DefaultPath = filepath.Join("config", "federation.yaml")

// Config is the complete federation configuration.
type Config struct {
	Registry RegistryConfig          `yaml:"registry"`
	Monitor  MonitorConfig           `yaml:"monitor"`
	Logging  LoggingConfig           `yaml:"logging"`
	Modules  map[string]ModuleConfig `yaml:"modules"`
}

// RegistryConfig configures the module registry and its event bus.
type RegistryConfig struct {
	LoadTimeout    time.Duration `yaml:"load_timeout" env:"FEDERATION_LOAD_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"FEDERATION_REQUEST_TIMEOUT"`
	CacheTTL       time.Duration `yaml:"cache_ttl" env:"FEDERATION_CACHE_TTL"`
	EventHistory   int           `yaml:"event_history" env:"FEDERATION_EVENT_HISTORY"`
	// KnownModules is the dependency-ordered initialization list.
	// Environment form: ids separated by semicolons.
	KnownModules []string `yaml:"known_modules" env:"FEDERATION_KNOWN_MODULES"`
}

// MonitorConfig configures the performance monitor.
type MonitorConfig struct {
	SlowCallThreshold    time.Duration `yaml:"slow_call_threshold" env:"FEDERATION_SLOW_CALL_THRESHOLD"`
	LatencyWindow        int           `yaml:"latency_window" env:"FEDERATION_LATENCY_WINDOW"`
	MemorySampleInterval time.Duration `yaml:"memory_sample_interval" env:"FEDERATION_MEMORY_SAMPLE_INTERVAL"`
	MemorySource         string        `yaml:"memory_source" env:"FEDERATION_MEMORY_SOURCE"`
	PreloadRate          float64       `yaml:"preload_rate" env:"FEDERATION_PRELOAD_RATE"`
	PreloadBurst         int           `yaml:"preload_burst" env:"FEDERATION_PRELOAD_BURST"`
	PreloadConcurrency   int           `yaml:"preload_concurrency" env:"FEDERATION_PRELOAD_CONCURRENCY"`
	MaxConcurrentLoads   int           `yaml:"max_concurrent_loads" env:"FEDERATION_MAX_CONCURRENT_LOADS"`
	TierAcquireTimeout   time.Duration `yaml:"tier_acquire_timeout" env:"FEDERATION_TIER_ACQUIRE_TIMEOUT"`
	MetricsNamespace     string        `yaml:"metrics_namespace" env:"FEDERATION_METRICS_NAMESPACE"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// BudgetConfig is a budget override in file form.
type BudgetConfig struct {
	MaxInitTime      time.Duration `yaml:"max_init_time"`
	MaxMemoryMB      float64       `yaml:"max_memory_mb"`
	MaxEventLatency  time.Duration `yaml:"max_event_latency"`
	WarningThreshold float64       `yaml:"warning_threshold"`
}

// ModuleConfig holds per-module settings.
type ModuleConfig struct {
	// Settings is passed to the module's Initialize hook.
	Settings map[string]any `yaml:"settings"`
	Budget   *BudgetConfig  `yaml:"budget"`
}

// Default returns the default configuration.
func Default() *Config {
	mon := monitor.DefaultConfig()
	return &Config{
		Registry: RegistryConfig{
			LoadTimeout:    registry.DefaultConfig().LoadTimeout,
			RequestTimeout: events.DefaultConfig().RequestTimeout,
			EventHistory:   events.DefaultConfig().HistorySize,
		},
		Monitor: MonitorConfig{
			SlowCallThreshold:    mon.SlowCallThreshold,
			LatencyWindow:        mon.LatencyWindow,
			MemorySampleInterval: mon.MemorySampleInterval,
			MemorySource:         mon.MemorySource,
			PreloadRate:          mon.PreloadRate,
			PreloadBurst:         mon.PreloadBurst,
			PreloadConcurrency:   mon.PreloadConcurrency,
			MetricsNamespace:     "federation",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Modules: map[string]ModuleConfig{},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read federation config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse federation config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults with environment
// overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return Load(path)
}

// ApplyEnv overrides fields from their tagged environment variables.
func (c *Config) ApplyEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Registry.LoadTimeout <= 0 {
		return fmt.Errorf("%w: registry.load_timeout must be positive", ErrInvalidConfig)
	}
	if c.Registry.RequestTimeout <= 0 {
		return fmt.Errorf("%w: registry.request_timeout must be positive", ErrInvalidConfig)
	}
	if c.Registry.CacheTTL < 0 {
		return fmt.Errorf("%w: registry.cache_ttl must not be negative", ErrInvalidConfig)
	}
	switch c.Monitor.MemorySource {
	case "", monitor.SourceHeap, monitor.SourceRSS:
	default:
		return fmt.Errorf("%w: monitor.memory_source %q is not heap or rss", ErrInvalidConfig, c.Monitor.MemorySource)
	}
	if i := c.Monitor.MemorySampleInterval; i > 0 && i < time.Second {
		return fmt.Errorf("%w: monitor.memory_sample_interval must be at least 1s", ErrInvalidConfig)
	}
	if c.Monitor.MaxConcurrentLoads < 0 {
		return fmt.Errorf("%w: monitor.max_concurrent_loads must not be negative", ErrInvalidConfig)
	}
	if c.Monitor.TierAcquireTimeout < 0 {
		return fmt.Errorf("%w: monitor.tier_acquire_timeout must not be negative", ErrInvalidConfig)
	}
	for id, mod := range c.Modules {
		if mod.Budget == nil {
			continue
		}
		if t := mod.Budget.WarningThreshold; t < 0 || t > 1 {
			return fmt.Errorf("%w: modules.%s.budget.warning_threshold must be within 0-1", ErrInvalidConfig, id)
		}
	}
	return nil
}

// MonitorConfig translates the configuration for the performance monitor.
func (c *Config) MonitorConfig() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.SlowCallThreshold = c.Monitor.SlowCallThreshold
	cfg.LatencyWindow = c.Monitor.LatencyWindow
	cfg.MemorySampleInterval = c.Monitor.MemorySampleInterval
	cfg.MemorySource = c.Monitor.MemorySource
	cfg.PreloadRate = c.Monitor.PreloadRate
	cfg.PreloadBurst = c.Monitor.PreloadBurst
	cfg.PreloadConcurrency = c.Monitor.PreloadConcurrency
	cfg.TierConcurrency = c.Monitor.MaxConcurrentLoads
	cfg.TierAcquireTimeout = c.Monitor.TierAcquireTimeout
	return cfg
}

// RegistryConfig translates the configuration for the module registry.
func (c *Config) RegistryConfig() registry.Config {
	settings := make(map[string]map[string]any, len(c.Modules))
	for id, mod := range c.Modules {
		if mod.Settings != nil {
			settings[id] = mod.Settings
		}
	}
	return registry.Config{
		LoadTimeout:  c.Registry.LoadTimeout,
		CacheTTL:     c.Registry.CacheTTL,
		KnownModules: append([]string(nil), c.Registry.KnownModules...),
		ModuleConfig: settings,
	}
}

// EventsConfig translates the configuration for the event bus.
func (c *Config) EventsConfig() events.Config {
	return events.Config{
		RequestTimeout: c.Registry.RequestTimeout,
		HistorySize:    c.Registry.EventHistory,
	}
}

// LoggerConfig returns the logger configuration for component.
func (c *Config) LoggerConfig(component string) logger.Config {
	return logger.Config{
		Component: component,
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
	}
}

// Budgets returns the per-module budget overrides. Unset fields inherit from
// the module's built-in budget.
func (c *Config) Budgets() map[string]monitor.Budget {
	out := make(map[string]monitor.Budget)
	for id, mod := range c.Modules {
		if mod.Budget == nil {
			continue
		}
		b := monitor.DefaultBudget
		if monitor.IsCoreModule(id) {
			b = monitor.CoreBudget
		}
		if mod.Budget.MaxInitTime > 0 {
			b.MaxInitTime = mod.Budget.MaxInitTime
		}
		if mod.Budget.MaxMemoryMB > 0 {
			b.MaxMemoryUsage = uint64(mod.Budget.MaxMemoryMB * float64(monitor.MiB))
		}
		if mod.Budget.MaxEventLatency > 0 {
			b.MaxEventLatency = mod.Budget.MaxEventLatency
		}
		if mod.Budget.WarningThreshold > 0 {
			b.WarningThreshold = mod.Budget.WarningThreshold
		}
		out[id] = b
	}
	return out
}
