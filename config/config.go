// Package config loads the service configuration from an optional TOML file,
// an optional environment overlay and LEAFSCAN_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	BaseConfigFile       = "leafscan.toml"
	OverlayConfigPattern = "leafscan.%s.toml"

	EnvLeafscanEnv            = "LEAFSCAN_ENV"
	EnvLeafscanLogLevel       = "LEAFSCAN_LOG_LEVEL"
	EnvLeafscanReportInterval = "LEAFSCAN_REPORT_INTERVAL"
)

// Config is the root configuration for leafscan.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Detector  DetectorConfig  `toml:"detector"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	UI        UIConfig        `toml:"ui"`
	LogLevel  string          `toml:"log_level"`
	// ReportInterval is how often profiler stats are logged; "0s" disables.
	ReportInterval string `toml:"report_interval"`
}

// Env returns the LEAFSCAN_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvLeafscanEnv); env != "" {
		return env
	}
	return "local"
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// ReportIntervalDuration returns ReportInterval as a time.Duration.
func (c *Config) ReportIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReportInterval)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no leafscan.toml exists, defaults and
// environment variables provide all configuration.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit base config path. Unlike the default
// leafscan.toml, an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	base := path
	if base == "" {
		if _, err := os.Stat(BaseConfigFile); err == nil {
			base = BaseConfigFile
		}
	}
	if base != "" {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, errors.Wrapf(err, "load overlay %s", overlay)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, errors.Wrap(err, "finalize config")
	}

	return cfg, nil
}

// Default returns a finalized configuration built from defaults and the
// environment alone.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.finalize(); err != nil {
		return nil, errors.Wrap(err, "finalize config")
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.ReportInterval != "" {
		c.ReportInterval = overlay.ReportInterval
	}
	c.Server.Merge(&overlay.Server)
	c.Detector.Merge(&overlay.Detector)
	c.Knowledge.Merge(&overlay.Knowledge)
	c.UI.Merge(&overlay.UI)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return errors.Wrap(err, "server")
	}
	if err := c.Detector.Finalize(); err != nil {
		return errors.Wrap(err, "detector")
	}
	if err := c.Knowledge.Finalize(); err != nil {
		return errors.Wrap(err, "knowledge")
	}
	if err := c.UI.Finalize(); err != nil {
		return errors.Wrap(err, "ui")
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReportInterval == "" {
		c.ReportInterval = "0s"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvLeafscanLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLeafscanReportInterval); v != "" {
		c.ReportInterval = v
	}
}

func (c *Config) validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return errors.Wrapf(err, "invalid log_level %q", c.LogLevel)
	}
	d, err := time.ParseDuration(c.ReportInterval)
	if err != nil {
		return errors.Wrap(err, "invalid report_interval")
	}
	if d < 0 {
		return errors.Errorf("invalid report_interval: %s", c.ReportInterval)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvLeafscanEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
