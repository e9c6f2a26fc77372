// Package config provides configuration management for convertd using
// Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultRetention       = 30 * time.Minute
	defaultMonitorSchedule = "@every 30s"
	defaultProbeTimeout    = 30 * time.Second
	defaultMinFreeSpace    = 2 * 1024 * 1024 * 1024 // 2GB
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Settings SettingsConfig `mapstructure:"settings"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Session  SessionConfig  `mapstructure:"session"`
	Device   DeviceConfig   `mapstructure:"device"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	OutputDir string `mapstructure:"output_dir"`
	TempDir   string `mapstructure:"temp_dir"`
	// MinFreeSpace is the free-space floor below which conversions are
	// refused. Supports human-readable values like "2GB".
	MinFreeSpace ByteSize `mapstructure:"min_free_space"`
}

// SettingsConfig holds the persistent settings store configuration.
type SettingsConfig struct {
	DSN string `mapstructure:"dsn"`
}

// EngineConfig holds codec backend configuration.
type EngineConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`      // Path to ffmpeg binary (empty = auto-detect)
	FFprobePath     string        `mapstructure:"ffprobe_path"`     // Path to ffprobe binary (empty = auto-detect)
	PreferHardware  bool          `mapstructure:"prefer_hardware"`  // Probe hardware encoders before the CLI backend
	HWAccelPriority []string      `mapstructure:"hwaccel_priority"` // Priority order: cuda, qsv, vaapi, videotoolbox
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	// Retention is how long terminal sessions are kept before eviction.
	// Supports extended duration units like "30d" and "2w".
	Retention Duration `mapstructure:"retention"`
	// MonitorSchedule is the cron expression for the device check.
	MonitorSchedule string `mapstructure:"monitor_schedule"`
	// MaxSessions caps concurrent active sessions on top of the
	// device-derived limit (0 = device-derived only).
	MaxSessions int `mapstructure:"max_sessions"`
}

// DeviceConfig holds telemetry overrides.
type DeviceConfig struct {
	// BenchmarkScore overrides the derived 0-100 processing benchmark
	// when a measured value is available (0 = derive from CPU).
	BenchmarkScore float64 `mapstructure:"benchmark_score"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CONVERTD_ and use underscores
// for nesting. Example: CONVERTD_SESSION_RETENTION=1h.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/convertd")
		v.AddConfigPath("$HOME/.convertd")
	}

	v.SetEnvPrefix("CONVERTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env vars carry it.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.output_dir", "outputs")
	v.SetDefault("storage.temp_dir", "scratch")
	v.SetDefault("storage.min_free_space", defaultMinFreeSpace)

	v.SetDefault("settings.dsn", "convertd.db")

	v.SetDefault("engine.ffmpeg_path", "")
	v.SetDefault("engine.ffprobe_path", "")
	v.SetDefault("engine.prefer_hardware", true)
	v.SetDefault("engine.hwaccel_priority", []string{"cuda", "qsv", "vaapi", "videotoolbox"})
	v.SetDefault("engine.probe_timeout", defaultProbeTimeout)

	v.SetDefault("session.retention", defaultRetention)
	v.SetDefault("session.monitor_schedule", defaultMonitorSchedule)
	v.SetDefault("session.max_sessions", 0)

	v.SetDefault("device.benchmark_score", 0.0)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Settings.DSN == "" {
		return fmt.Errorf("settings.dsn is required")
	}

	if c.Session.Retention < 0 {
		return fmt.Errorf("session.retention must not be negative")
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.max_sessions must not be negative")
	}
	if c.Device.BenchmarkScore < 0 || c.Device.BenchmarkScore > 100 {
		return fmt.Errorf("device.benchmark_score must be between 0 and 100")
	}

	return nil
}

// OutputPath returns the full path to the output directory.
func (c *StorageConfig) OutputPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.OutputDir)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.TempDir)
}
