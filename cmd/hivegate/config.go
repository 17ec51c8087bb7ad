package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivegate/hivegate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Hivegate configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/hivegate/config.yaml
Project-specific overrides can be placed in .hivegate.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("pool.grace_period: %s\n", cfg.Pool.GracePeriod)
	fmt.Printf("pool.pressure_fraction: %g\n", cfg.Pool.PressureFraction)
	fmt.Printf("pool.inactivity_timeout: %s\n", cfg.Pool.InactivityTimeout)
	fmt.Printf("scheduler.completed_log_size: %d\n", cfg.Scheduler.CompletedLogSize)
	fmt.Printf("scheduler.retention: %s\n", cfg.Scheduler.Retention)
	fmt.Printf("consensus.retention: %s\n", cfg.Consensus.Retention)
	fmt.Printf("consensus.default_threshold: %g\n", cfg.Consensus.DefaultThreshold)
	fmt.Printf("consensus.default_timeout: %s\n", cfg.Consensus.DefaultTimeout)
	fmt.Printf("swarm.health_interval: %s\n", cfg.Swarm.HealthInterval)
	fmt.Printf("swarm.resolution_interval: %s\n", cfg.Swarm.ResolutionInterval)
	fmt.Printf("swarm.metrics_interval: %s\n", cfg.Swarm.MetricsInterval)
	fmt.Printf("swarm.event_buffer: %d\n", cfg.Swarm.EventBuffer)
	fmt.Printf("swarm.scale_capacity: %d\n", cfg.Swarm.ScaleCapacity)
	fmt.Printf("journal.enabled: %t\n", cfg.Journal.Enabled)
	fmt.Printf("journal.path: %s\n", journalPathDisplay(cfg))
	fmt.Printf("control.dir: %s\n", cfg.Control.Dir)
}

func journalPathDisplay(cfg *config.Config) string {
	if cfg.Journal.Path == "" {
		return "(default: " + cfg.JournalPath() + ")"
	}
	return cfg.Journal.Path
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "pool.grace_period":
		return cfg.Pool.GracePeriod.String(), nil
	case "pool.pressure_fraction":
		return strconv.FormatFloat(cfg.Pool.PressureFraction, 'g', -1, 64), nil
	case "pool.inactivity_timeout":
		return cfg.Pool.InactivityTimeout.String(), nil
	case "scheduler.completed_log_size":
		return strconv.Itoa(cfg.Scheduler.CompletedLogSize), nil
	case "scheduler.retention":
		return cfg.Scheduler.Retention.String(), nil
	case "consensus.retention":
		return cfg.Consensus.Retention.String(), nil
	case "consensus.default_threshold":
		return strconv.FormatFloat(cfg.Consensus.DefaultThreshold, 'g', -1, 64), nil
	case "consensus.default_timeout":
		return cfg.Consensus.DefaultTimeout.String(), nil
	case "swarm.health_interval":
		return cfg.Swarm.HealthInterval.String(), nil
	case "swarm.resolution_interval":
		return cfg.Swarm.ResolutionInterval.String(), nil
	case "swarm.metrics_interval":
		return cfg.Swarm.MetricsInterval.String(), nil
	case "swarm.event_buffer":
		return strconv.Itoa(cfg.Swarm.EventBuffer), nil
	case "swarm.scale_capacity":
		return strconv.Itoa(cfg.Swarm.ScaleCapacity), nil
	case "journal.enabled":
		return strconv.FormatBool(cfg.Journal.Enabled), nil
	case "journal.path":
		return cfg.Journal.Path, nil
	case "control.dir":
		return cfg.Control.Dir, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "pool.grace_period":
		return setDuration(&cfg.Pool.GracePeriod, value)
	case "pool.pressure_fraction":
		return setFloat(&cfg.Pool.PressureFraction, value)
	case "pool.inactivity_timeout":
		return setDuration(&cfg.Pool.InactivityTimeout, value)
	case "scheduler.completed_log_size":
		return setInt(&cfg.Scheduler.CompletedLogSize, value)
	case "scheduler.retention":
		return setDuration(&cfg.Scheduler.Retention, value)
	case "consensus.retention":
		return setDuration(&cfg.Consensus.Retention, value)
	case "consensus.default_threshold":
		return setFloat(&cfg.Consensus.DefaultThreshold, value)
	case "consensus.default_timeout":
		return setDuration(&cfg.Consensus.DefaultTimeout, value)
	case "swarm.health_interval":
		return setDuration(&cfg.Swarm.HealthInterval, value)
	case "swarm.resolution_interval":
		return setDuration(&cfg.Swarm.ResolutionInterval, value)
	case "swarm.metrics_interval":
		return setDuration(&cfg.Swarm.MetricsInterval, value)
	case "swarm.event_buffer":
		return setInt(&cfg.Swarm.EventBuffer, value)
	case "swarm.scale_capacity":
		return setInt(&cfg.Swarm.ScaleCapacity, value)
	case "journal.enabled":
		return setBool(&cfg.Journal.Enabled, value)
	case "journal.path":
		cfg.Journal.Path = value
		return nil
	case "control.dir":
		cfg.Control.Dir = value
		return nil
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
}

func setDuration(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", value, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", value, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean %q: %w", value, err)
	}
	*dst = b
	return nil
}
