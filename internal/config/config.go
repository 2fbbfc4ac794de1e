package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration
type Config struct {
	// SaveDir is the directory containing the game's .d2s save files.
	SaveDir string `mapstructure:"save_dir" yaml:"save_dir"`
	// BackupDir is where backups are written. Empty means <save_dir>/Backups.
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir"`

	EnableCompression bool `mapstructure:"enable_compression" yaml:"enable_compression"`
	// MaxBackupsPerFile caps stored backups per save file, 1 to 100.
	MaxBackupsPerFile int `mapstructure:"max_backups_per_file" yaml:"max_backups_per_file"`
	// BackupCooldownSeconds gates automatic backups, 10 to 300 seconds.
	BackupCooldownSeconds int `mapstructure:"backup_cooldown_seconds" yaml:"backup_cooldown_seconds"`

	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// MetricsAddr enables the Prometheus endpoint in watch mode when set,
	// e.g. "127.0.0.1:9309".
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
}

// WatchConfig controls the save-directory monitor
type WatchConfig struct {
	// DebounceSeconds is how long a file must stay quiet after a write
	// before it is evaluated. Game clients write saves in bursts.
	DebounceSeconds int `mapstructure:"debounce_seconds" yaml:"debounce_seconds"`
	// PeriodicIntervalMinutes is the interval of the periodic backup sweep.
	// Zero disables the sweep.
	PeriodicIntervalMinutes int `mapstructure:"periodic_interval_minutes" yaml:"periodic_interval_minutes"`
	// DangerThresholdBytes triggers an immediate backup when a save file
	// grows to at least this size. Zero disables threshold backups.
	DangerThresholdBytes int64 `mapstructure:"danger_threshold_bytes" yaml:"danger_threshold_bytes"`
	// Workers bounds concurrent backups during the periodic sweep.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

const (
	defaultMaxBackupsPerFile = 10
	defaultCooldownSeconds   = 30
	defaultDebounceSeconds   = 2
	defaultPeriodicMinutes   = 15
	defaultWatchWorkers      = 2

	minCooldownSeconds = 10
	maxCooldownSeconds = 300
	maxBackupsCeiling  = 100
)

// SetDefaults fills unset fields with sensible defaults
func (c *Config) SetDefaults() {
	if c.MaxBackupsPerFile == 0 {
		c.MaxBackupsPerFile = defaultMaxBackupsPerFile
	}
	if c.BackupCooldownSeconds == 0 {
		c.BackupCooldownSeconds = defaultCooldownSeconds
	}
	if c.Watch.DebounceSeconds == 0 {
		c.Watch.DebounceSeconds = defaultDebounceSeconds
	}
	if c.Watch.PeriodicIntervalMinutes == 0 {
		c.Watch.PeriodicIntervalMinutes = defaultPeriodicMinutes
	}
	if c.Watch.Workers == 0 {
		c.Watch.Workers = defaultWatchWorkers
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "normal"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	var errs []error

	if c.SaveDir == "" {
		errs = append(errs, fmt.Errorf("save_dir is required"))
	}
	if c.MaxBackupsPerFile < 1 || c.MaxBackupsPerFile > maxBackupsCeiling {
		errs = append(errs, fmt.Errorf("max_backups_per_file must be between 1 and %d, got %d",
			maxBackupsCeiling, c.MaxBackupsPerFile))
	}
	if c.BackupCooldownSeconds < minCooldownSeconds || c.BackupCooldownSeconds > maxCooldownSeconds {
		errs = append(errs, fmt.Errorf("backup_cooldown_seconds must be between %d and %d, got %d",
			minCooldownSeconds, maxCooldownSeconds, c.BackupCooldownSeconds))
	}
	if c.Watch.DebounceSeconds < 1 {
		errs = append(errs, fmt.Errorf("watch.debounce_seconds must be at least 1, got %d",
			c.Watch.DebounceSeconds))
	}
	if c.Watch.PeriodicIntervalMinutes < 0 {
		errs = append(errs, fmt.Errorf("watch.periodic_interval_minutes must not be negative, got %d",
			c.Watch.PeriodicIntervalMinutes))
	}
	if c.Watch.DangerThresholdBytes < 0 {
		errs = append(errs, fmt.Errorf("watch.danger_threshold_bytes must not be negative, got %d",
			c.Watch.DangerThresholdBytes))
	}
	if c.Watch.Workers < 1 {
		errs = append(errs, fmt.Errorf("watch.workers must be at least 1, got %d", c.Watch.Workers))
	}

	switch c.Logging.Level {
	case "quiet", "normal", "verbose", "debug":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of quiet, normal, verbose, debug; got %q",
			c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// EffectiveBackupDir resolves the backup directory, defaulting to a Backups
// subdirectory of the save directory.
func (c *Config) EffectiveBackupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(c.SaveDir, "Backups")
}

// Cooldown returns the backup cooldown as a duration
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.BackupCooldownSeconds) * time.Second
}

// Debounce returns the watch debounce window as a duration
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceSeconds) * time.Second
}

// PeriodicInterval returns the periodic sweep interval as a duration.
// Zero means the sweep is disabled.
func (c *Config) PeriodicInterval() time.Duration {
	return time.Duration(c.Watch.PeriodicIntervalMinutes) * time.Minute
}

// Load unmarshals the configuration bound in v, applies defaults, and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sample returns a fully commented-out default configuration as YAML, for
// the config init command.
func Sample() ([]byte, error) {
	cfg := Config{
		SaveDir:               defaultSaveDir(),
		EnableCompression:     true,
		MaxBackupsPerFile:     defaultMaxBackupsPerFile,
		BackupCooldownSeconds: defaultCooldownSeconds,
		Watch: WatchConfig{
			DebounceSeconds:         defaultDebounceSeconds,
			PeriodicIntervalMinutes: defaultPeriodicMinutes,
			DangerThresholdBytes:    0,
			Workers:                 defaultWatchWorkers,
		},
		Logging: LoggingConfig{
			Level:  "normal",
			Format: "text",
		},
	}
	return yaml.Marshal(&cfg)
}

// defaultSaveDir guesses the conventional save location. The game only
// ships on Windows; elsewhere the guess is a placeholder the user edits.
func defaultSaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Saved Games/Diablo II Resurrected"
	}
	return filepath.Join(home, "Saved Games", "Diablo II Resurrected")
}
