// Package config handles configuration loading and management for Hivegate.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Hivegate.
type Config struct {
	Pool      PoolConfig      `mapstructure:"pool"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Control   ControlConfig   `mapstructure:"control"`
}

// PoolConfig holds agent pool lifecycle and health settings.
type PoolConfig struct {
	// GracePeriod bounds how long a graceful stop waits for tasks to drain.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// PressureFraction is the load ratio at which an agent is considered
	// under pressure.
	PressureFraction float64 `mapstructure:"pressure_fraction"`
	// InactivityTimeout is how long an agent may sit without activity
	// before it is flagged.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
}

// SchedulerConfig holds task queue settings.
type SchedulerConfig struct {
	// CompletedLogSize bounds the in-memory terminal task log.
	CompletedLogSize int `mapstructure:"completed_log_size"`
	// Retention is how long terminal tasks stay queryable.
	Retention time.Duration `mapstructure:"retention"`
}

// ConsensusConfig holds decision engine settings.
type ConsensusConfig struct {
	// Retention is how long resolved decisions stay queryable.
	Retention time.Duration `mapstructure:"retention"`
	// DefaultThreshold is the agree percentage used when a proposal
	// does not specify one.
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	// DefaultTimeout is the voting window used when a proposal does not
	// specify one.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// SwarmConfig holds coordinator timer and buffer settings.
type SwarmConfig struct {
	HealthInterval     time.Duration `mapstructure:"health_interval"`
	ResolutionInterval time.Duration `mapstructure:"resolution_interval"`
	MetricsInterval    time.Duration `mapstructure:"metrics_interval"`
	EventBuffer        int           `mapstructure:"event_buffer"`
	ScaleCapacity      int           `mapstructure:"scale_capacity"`
}

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	// Enabled toggles durable event recording.
	Enabled bool `mapstructure:"enabled"`
	// Path is the journal database file. Empty means the default under
	// the user data directory.
	Path string `mapstructure:"path"`
}

// ControlConfig holds the control-signal watcher settings.
type ControlConfig struct {
	// Dir is the directory watched for pause/resume/drain signal files.
	// Empty disables the watcher.
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (HIVEGATE_*)
// 2. Project config (.hivegate.yaml in current directory or parent)
// 3. User config (~/.config/hivegate/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("HIVEGATE")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("pool.grace_period", cfg.Pool.GracePeriod.String())
	v.Set("pool.pressure_fraction", cfg.Pool.PressureFraction)
	v.Set("pool.inactivity_timeout", cfg.Pool.InactivityTimeout.String())
	v.Set("scheduler.completed_log_size", cfg.Scheduler.CompletedLogSize)
	v.Set("scheduler.retention", cfg.Scheduler.Retention.String())
	v.Set("consensus.retention", cfg.Consensus.Retention.String())
	v.Set("consensus.default_threshold", cfg.Consensus.DefaultThreshold)
	v.Set("consensus.default_timeout", cfg.Consensus.DefaultTimeout.String())
	v.Set("swarm.health_interval", cfg.Swarm.HealthInterval.String())
	v.Set("swarm.resolution_interval", cfg.Swarm.ResolutionInterval.String())
	v.Set("swarm.metrics_interval", cfg.Swarm.MetricsInterval.String())
	v.Set("swarm.event_buffer", cfg.Swarm.EventBuffer)
	v.Set("swarm.scale_capacity", cfg.Swarm.ScaleCapacity)
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("control.dir", cfg.Control.Dir)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// JournalPath resolves the journal database path, falling back to the
// default location under the user data directory.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(getUserDataDir(), "journal.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.grace_period", "30s")
	v.SetDefault("pool.pressure_fraction", 0.8)
	v.SetDefault("pool.inactivity_timeout", "5m")

	v.SetDefault("scheduler.completed_log_size", 256)
	v.SetDefault("scheduler.retention", "1h")

	v.SetDefault("consensus.retention", "1h")
	v.SetDefault("consensus.default_threshold", 70.0)
	v.SetDefault("consensus.default_timeout", "60s")

	v.SetDefault("swarm.health_interval", "10s")
	v.SetDefault("swarm.resolution_interval", "1s")
	v.SetDefault("swarm.metrics_interval", "30s")
	v.SetDefault("swarm.event_buffer", 100)
	v.SetDefault("swarm.scale_capacity", 1)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "")

	v.SetDefault("control.dir", "")
}

// getUserConfigDir returns the XDG config directory for Hivegate.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hivegate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hivegate")
	}
	return filepath.Join(home, ".config", "hivegate")
}

// getUserDataDir returns the XDG data directory for Hivegate.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "hivegate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "hivegate")
	}
	return filepath.Join(home, ".local", "share", "hivegate")
}

// findProjectConfig searches for .hivegate.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hivegate.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
