package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	API      APIConfig      `json:"api"`
	Tracking TrackingConfig `json:"tracking"`
	Log      LogConfig      `json:"log"`
}

// APIConfig holds backend connection settings
type APIConfig struct {
	BaseURL              string `json:"base_url"`
	FetchIntervalMinutes int    `json:"fetch_interval_minutes"`
}

// TrackingConfig holds live run-tracking settings
type TrackingConfig struct {
	LocationIntervalMillis int `json:"location_interval_millis"`
	TickIntervalMillis     int `json:"tick_interval_millis"`
}

// LogConfig holds logging preferences
type LogConfig struct {
	Level    string `json:"level"`
	File     string `json:"file"`
	ToStdout bool   `json:"to_stdout"`
	JSON     bool   `json:"json"`
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			FetchIntervalMinutes: 30,
		},
		Tracking: TrackingConfig{
			LocationIntervalMillis: 1000,
			TickIntervalMillis:     200,
		},
		Log: LogConfig{
			Level:    "info",
			ToStdout: true,
		},
	}
}

// Load reads the configuration from ~/.runtrack/config.json
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for missing values
	defaults := DefaultConfig()
	if cfg.API.FetchIntervalMinutes == 0 {
		cfg.API.FetchIntervalMinutes = defaults.API.FetchIntervalMinutes
	}
	if cfg.Tracking.LocationIntervalMillis == 0 {
		cfg.Tracking.LocationIntervalMillis = defaults.Tracking.LocationIntervalMillis
	}
	if cfg.Tracking.TickIntervalMillis == 0 {
		cfg.Tracking.TickIntervalMillis = defaults.Tracking.TickIntervalMillis
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	return &cfg, nil
}

// Save writes the configuration to ~/.runtrack/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	example.API.BaseURL = "https://api.example.com"

	return Save(&example)
}

// Validate checks if the config has required fields
func (c *Config) Validate() error {
	if c.API.BaseURL == "" || c.API.BaseURL == "https://api.example.com" {
		return errors.New("api.base_url is required - set it to your backend endpoint")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}

	if c.API.FetchIntervalMinutes < 0 {
		return fmt.Errorf("api.fetch_interval_minutes must not be negative, got %d", c.API.FetchIntervalMinutes)
	}
	if c.Tracking.LocationIntervalMillis < 0 {
		return fmt.Errorf("tracking.location_interval_millis must not be negative, got %d", c.Tracking.LocationIntervalMillis)
	}
	if c.Tracking.TickIntervalMillis < 0 {
		return fmt.Errorf("tracking.tick_interval_millis must not be negative, got %d", c.Tracking.TickIntervalMillis)
	}

	switch c.Log.Level {
	case "", "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error, fatal, got %q", c.Log.Level)
	}

	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".runtrack", "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".runtrack"), nil
}
