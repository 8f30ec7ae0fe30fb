// Package config loads relaylink settings from a YAML file and the
// environment. Environment variables win over the file, which wins over
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnvOverrides.
const (
	EnvRelayURL          = "RELAYLINK_RELAY_URL"
	EnvDataDir           = "RELAYLINK_DATA_DIR"
	EnvPassphrase        = "RELAYLINK_PASSPHRASE"
	EnvLogLevel          = "RELAYLINK_LOG_LEVEL"
	EnvTimeout           = "RELAYLINK_TIMEOUT"
	EnvRequireSignatures = "RELAYLINK_REQUIRE_SIGNATURES"
)

// FileName is the config file looked up in the data directory.
const FileName = "config.yaml"

// Config is the resolved configuration.
type Config struct {
	RelayURL          string
	DataDir           string
	Passphrase        string
	LogLevel          string
	LogFormat         string
	Timeout           time.Duration
	BatchTolerance    time.Duration
	SummaryThreshold  int
	RequireSignatures bool
}

// FileConfig is the YAML layout. Unset fields keep their defaults.
type FileConfig struct {
	RelayURL          string        `yaml:"relay_url"`
	DataDir           string        `yaml:"data_dir"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	Timeout           time.Duration `yaml:"timeout"`
	BatchTolerance    time.Duration `yaml:"batch_tolerance"`
	SummaryThreshold  int           `yaml:"summary_threshold"`
	RequireSignatures *bool         `yaml:"require_signatures"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := ".relaylink"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".relaylink")
	}
	return Config{
		RelayURL:         "http://localhost:8787",
		DataDir:          dataDir,
		LogLevel:         "warning",
		LogFormat:        "text",
		Timeout:          15 * time.Second,
		BatchTolerance:   5 * time.Minute,
		SummaryThreshold: 280,
	}
}

// LoadFromPath builds the configuration. An explicit path must exist and
// parse. With an empty path, <data dir>/config.yaml is used if present.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		cfg.DataDir = dir
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		Merge(&cfg, parsed)
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// Merge copies the set fields of src onto dst.
func Merge(dst *Config, src FileConfig) {
	if src.RelayURL != "" {
		dst.RelayURL = src.RelayURL
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFormat != "" {
		dst.LogFormat = src.LogFormat
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if src.BatchTolerance != 0 {
		dst.BatchTolerance = src.BatchTolerance
	}
	if src.SummaryThreshold != 0 {
		dst.SummaryThreshold = src.SummaryThreshold
	}
	if src.RequireSignatures != nil {
		dst.RequireSignatures = *src.RequireSignatures
	}
}

// ApplyEnvOverrides applies RELAYLINK_* variables. Unparseable values are
// ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRelayURL)); v != "" {
		cfg.RelayURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		cfg.Passphrase = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeout)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRequireSignatures)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RequireSignatures = b
		}
	}
}

// ConfigureLogging applies the log level and format to the standard logrus
// logger.
func (c Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q: want text or json", c.LogFormat)
	}
	return nil
}
