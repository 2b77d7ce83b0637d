// Package config provides configuration management for the swrite agent.
// Configuration is loaded from an optional YAML file and environment
// variables, in that order, on top of sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort         = 8787
	DefaultLogLevel     = "info"
	DefaultDataDir      = ".swrite"
	DefaultAPIURL       = "http://localhost:8000"
	DefaultPollInterval = 3  // seconds
	DefaultPollRate     = 1  // status requests per second
	DefaultHTTPTimeout  = 60 // seconds
	DefaultSampleText   = "Test pasted text content"

	// Environment variable names
	EnvConfigFile   = "SWRITE_CONFIG"
	EnvPort         = "SWRITE_PORT"
	EnvLogLevel     = "SWRITE_LOG_LEVEL"
	EnvDataDir      = "SWRITE_DATA_DIR"
	EnvAPIURL       = "SWRITE_API_URL"
	EnvHeadless     = "SWRITE_HEADLESS"
	EnvPollInterval = "SWRITE_POLL_INTERVAL"
	EnvPollRate     = "SWRITE_POLL_RATE"
	EnvHTTPTimeout  = "SWRITE_HTTP_TIMEOUT"
	EnvSampleText   = "SWRITE_SAMPLE_TEXT"

	// Database filename
	DBFilename = "swrite.db"

	// ConfigFilename is looked up in the data dir when SWRITE_CONFIG is unset.
	ConfigFilename = "config.yaml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	APIURL() string
	Headless() bool
	PollInterval() time.Duration
	PollRate() float64
	HTTPTimeout() time.Duration
	SampleText() string
}

// fileConfig mirrors the YAML file layout. Zero values leave defaults alone.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	API      struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Tracking struct {
		IntervalSeconds int     `yaml:"interval_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
	} `yaml:"tracking"`
	Headless   *bool  `yaml:"headless"`
	SampleText string `yaml:"sample_text"`
}

// EnvConfig reads configuration from a YAML file and environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	dataDir      string
	apiURL       string
	headless     bool
	pollInterval time.Duration
	pollRate     float64
	httpTimeout  time.Duration
	sampleText   string
}

// New creates a new EnvConfig with defaults, file values and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		apiURL:       DefaultAPIURL,
		pollInterval: time.Duration(DefaultPollInterval) * time.Second,
		pollRate:     DefaultPollRate,
		httpTimeout:  time.Duration(DefaultHTTPTimeout) * time.Second,
		sampleText:   DefaultSampleText,
	}

	// The data dir decides where the default config file lives
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.dataDir, ConfigFilename)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		if err := validatePort(fc.Port, "port"); err != nil {
			return err
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" && os.Getenv(EnvDataDir) == "" {
		c.dataDir = fc.DataDir
	}
	if fc.API.URL != "" {
		c.apiURL = fc.API.URL
	}
	if fc.API.TimeoutSeconds > 0 {
		c.httpTimeout = time.Duration(fc.API.TimeoutSeconds) * time.Second
	}
	if fc.Tracking.IntervalSeconds > 0 {
		c.pollInterval = time.Duration(fc.Tracking.IntervalSeconds) * time.Second
	}
	if fc.Tracking.RatePerSecond > 0 {
		c.pollRate = fc.Tracking.RatePerSecond
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.SampleText != "" {
		c.sampleText = fc.SampleText
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validatePort(port, EnvPort); err != nil {
			return err
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}

	if u := os.Getenv(EnvAPIURL); u != "" {
		c.apiURL = u
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}

	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := positiveSeconds(EnvPollInterval, v)
		if err != nil {
			return err
		}
		c.pollInterval = d
	}

	if v := os.Getenv(EnvHTTPTimeout); v != "" {
		d, err := positiveSeconds(EnvHTTPTimeout, v)
		if err != nil {
			return err
		}
		c.httpTimeout = d
	}

	if v := os.Getenv(EnvPollRate); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPollRate, err)
		}
		if rate <= 0 {
			return fmt.Errorf("invalid %s: must be positive", EnvPollRate)
		}
		c.pollRate = rate
	}

	if st := os.Getenv(EnvSampleText); st != "" {
		c.sampleText = st
	}
	return nil
}

// Port returns the local HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// APIURL returns the base URL of the remote Job API
func (c *EnvConfig) APIURL() string {
	return c.apiURL
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *EnvConfig) PollRate() float64 {
	return c.pollRate
}

func (c *EnvConfig) HTTPTimeout() time.Duration {
	return c.httpTimeout
}

// SampleText is sent as pasted content when no file is selected
func (c *EnvConfig) SampleText() string {
	return c.sampleText
}

func validatePort(port int, key string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", key)
	}
	return nil
}

func positiveSeconds(key, v string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return time.Duration(n) * time.Second, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
