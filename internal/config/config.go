// Package config loads the speedtrap server configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/units"
)

// DefaultConfigPath is the example configuration shipped with the repository.
const DefaultConfigPath = "config/speedtrap.defaults.json"

const (
	defaultListen         = ":8080"
	defaultDBPath         = "speedtrap.db"
	defaultFrameInterval  = time.Second / 60
	defaultMaxRunDuration = 5 * time.Minute
	defaultHistoryLimit   = 100
)

// Config is the root server configuration. Every field is optional; the
// Get* methods supply defaults for anything the file leaves out.
type Config struct {
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`

	// Simulation
	FrameInterval  *string `json:"frame_interval,omitempty"`   // duration string like "16ms"
	MaxRunDuration *string `json:"max_run_duration,omitempty"` // "0s" disables the limit
	DefaultZone    *string `json:"default_zone,omitempty"`
	DefaultWeather *string `json:"default_weather,omitempty"`

	// Presentation
	Units           *string `json:"units,omitempty"`
	ChartAssetsHost *string `json:"chart_assets_host,omitempty"`
	HistoryLimit    *int    `json:"history_limit,omitempty"`
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("frame_interval must be positive, got %s", d)
		}
	}

	if c.MaxRunDuration != nil && *c.MaxRunDuration != "" {
		d, err := time.ParseDuration(*c.MaxRunDuration)
		if err != nil {
			return fmt.Errorf("invalid max_run_duration '%s': %w", *c.MaxRunDuration, err)
		}
		if d < 0 {
			return fmt.Errorf("max_run_duration must be non-negative, got %s", d)
		}
	}

	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("invalid units %q, must be one of: %s", *c.Units, units.GetValidUnitsString())
	}

	if c.DefaultZone != nil {
		if _, err := physics.ParseZone(*c.DefaultZone); err != nil {
			return fmt.Errorf("invalid default_zone: %w", err)
		}
	}

	// ParseWeather is lenient, so check the round trip.
	if c.DefaultWeather != nil && physics.ParseWeather(*c.DefaultWeather).String() != *c.DefaultWeather {
		return fmt.Errorf("invalid default_weather %q, must be one of: dry, rainy, snowy", *c.DefaultWeather)
	}

	if c.HistoryLimit != nil && *c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", *c.HistoryLimit)
	}

	if c.Listen != nil && *c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.DBPath != nil && *c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}

	return nil
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return defaultListen
	}
	return *c.Listen
}

// GetDBPath returns the sqlite database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return defaultDBPath
	}
	return *c.DBPath
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *Config) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return defaultFrameInterval
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil || d <= 0 {
		return defaultFrameInterval
	}
	return d
}

// GetMaxRunDuration returns the simulated time limit for a run. Zero leaves
// live runs unlimited; synchronous runs fall back to their own cap.
func (c *Config) GetMaxRunDuration() time.Duration {
	if c.MaxRunDuration == nil || *c.MaxRunDuration == "" {
		return defaultMaxRunDuration
	}
	d, err := time.ParseDuration(*c.MaxRunDuration)
	if err != nil || d < 0 {
		return defaultMaxRunDuration
	}
	return d
}

// GetDefaultZone returns the zone used when a request omits one.
func (c *Config) GetDefaultZone() physics.Zone {
	if c.DefaultZone == nil {
		return physics.Urban
	}
	z, err := physics.ParseZone(*c.DefaultZone)
	if err != nil {
		return physics.Urban
	}
	return z
}

// GetDefaultWeather returns the weather used when a request omits one.
func (c *Config) GetDefaultWeather() physics.Weather {
	if c.DefaultWeather == nil {
		return physics.Dry
	}
	return physics.ParseWeather(*c.DefaultWeather)
}

// GetUnits returns the display speed unit or the default.
func (c *Config) GetUnits() string {
	if c.Units == nil {
		return units.KPH
	}
	return *c.Units
}

// GetChartAssetsHost returns the echarts asset host; empty selects the
// renderer's default.
func (c *Config) GetChartAssetsHost() string {
	if c.ChartAssetsHost == nil {
		return ""
	}
	return *c.ChartAssetsHost
}

// GetHistoryLimit returns how many runs the history endpoint lists.
func (c *Config) GetHistoryLimit() int {
	if c.HistoryLimit == nil {
		return defaultHistoryLimit
	}
	return *c.HistoryLimit
}

// Effective returns a copy with every field populated, as served by the
// config endpoint.
func (c *Config) Effective() *Config {
	listen, dbPath := c.GetListen(), c.GetDBPath()
	frame, maxDur := c.GetFrameInterval().String(), c.GetMaxRunDuration().String()
	zone, weather := c.GetDefaultZone().String(), c.GetDefaultWeather().String()
	u, assets, limit := c.GetUnits(), c.GetChartAssetsHost(), c.GetHistoryLimit()
	return &Config{
		Listen:          &listen,
		DBPath:          &dbPath,
		FrameInterval:   &frame,
		MaxRunDuration:  &maxDur,
		DefaultZone:     &zone,
		DefaultWeather:  &weather,
		Units:           &u,
		ChartAssetsHost: &assets,
		HistoryLimit:    &limit,
	}
}
