package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up inside the config directory
const DefaultFileName = "integrations.yaml"

// Config is the root of integrations.yaml
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Store         StoreConfig         `yaml:"store"`
	Location      LocationConfig      `yaml:"location"`
	Integrations  []EntryConfig       `yaml:"integrations"`
}

// HomeAssistantConfig describes the publishing target
type HomeAssistantConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	ReadOnly bool   `yaml:"read_only"`
	// Restore seeds preserved entities from the helper states on startup
	Restore bool `yaml:"restore"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// APIConfig controls the status HTTP server
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig points at the SQLite database holding credentials and restore state
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LocationConfig is used by calendar calculations
type LocationConfig struct {
	Timezone  string  `yaml:"timezone"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// EntityConfig overrides a single entity of an entry
type EntityConfig struct {
	PreserveValue *bool `yaml:"preserve_value"`
	Enabled       *bool `yaml:"enabled"`
	// Helper is the Home Assistant helper entity the value is written to,
	// e.g. input_number.garmin_steps
	Helper string `yaml:"helper"`
}

// EntryConfig is one configured integration entry
type EntryConfig struct {
	ID      string `yaml:"id"`
	Domain  string `yaml:"domain"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`

	// ScanIntervals maps a coordinator name to its polling interval in seconds
	ScanIntervals map[string]int          `yaml:"scan_interval"`
	Entities      map[string]EntityConfig `yaml:"entities"`

	// Settings is decoded by the owning integration
	Settings yaml.Node `yaml:"settings"`
}

// IsEnabled reports whether the entry should be set up
func (e EntryConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ScanInterval returns the configured interval for a coordinator, or def
func (e EntryConfig) ScanInterval(coordinator string, def time.Duration) time.Duration {
	if secs, ok := e.ScanIntervals[coordinator]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// DecodeSettings decodes the integration-specific settings into out
func (e EntryConfig) DecodeSettings(out interface{}) error {
	if e.Settings.Kind == 0 {
		return nil
	}
	if err := e.Settings.Decode(out); err != nil {
		return fmt.Errorf("failed to decode settings for %s: %w", e.Domain, err)
	}
	return nil
}

// Loader manages configuration file loading
type Loader struct {
	configDir string
	logger    *zap.Logger
	config    *Config
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads integrations.yaml, applies environment overrides and defaults,
// and validates the result
func (l *Loader) Load() (*Config, error) {
	path := filepath.Join(l.configDir, DefaultFileName)
	l.logger.Debug("Loading config", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.config = cfg
	l.logger.Info("Config loaded successfully",
		zap.String("path", path),
		zap.Int("integrations", len(cfg.Integrations)))
	return cfg, nil
}

// Get returns the loaded configuration
func (l *Loader) Get() *Config {
	return l.config
}

// Parse decodes, completes and validates a config document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("HA_URL"); v != "" {
		c.HomeAssistant.URL = v
	}
	if v := getenv("HA_TOKEN"); v != "" {
		c.HomeAssistant.Token = v
	}
	if v := getenv("READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.HomeAssistant.ReadOnly = b
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("API_LISTEN"); v != "" {
		c.API.Listen = v
	}
	if v := getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("TZ"); v != "" && c.Location.Timezone == "" {
		c.Location.Timezone = v
	}
}

// ApplyDefaults fills unset fields and assigns entry IDs
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "haintegrations.db"
	}
	if c.Location.Timezone == "" {
		c.Location.Timezone = "UTC"
	}
	for i := range c.Integrations {
		e := &c.Integrations[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Name == "" {
			e.Name = e.Domain
		}
	}
}

// Validate checks the configuration for mistakes that would only surface later
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Location.Timezone); err != nil {
		return fmt.Errorf("location.timezone: %w", err)
	}
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude %v out of range", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude %v out of range", c.Location.Longitude)
	}
	if c.HomeAssistant.URL != "" && c.HomeAssistant.Token == "" {
		return fmt.Errorf("homeassistant.token is required when homeassistant.url is set")
	}

	seen := make(map[string]bool)
	for i, e := range c.Integrations {
		if e.Domain == "" {
			return fmt.Errorf("integrations[%d]: domain is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("integrations[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
		for name, secs := range e.ScanIntervals {
			if secs <= 0 {
				return fmt.Errorf("integrations[%d]: scan_interval.%s must be positive", i, name)
			}
		}
	}
	return nil
}

// TimeLocation returns the configured timezone
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Location.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Entry returns the entry with the given ID, or nil
func (c *Config) Entry(id string) *EntryConfig {
	for i := range c.Integrations {
		if c.Integrations[i].ID == id {
			return &c.Integrations[i]
		}
	}
	return nil
}
