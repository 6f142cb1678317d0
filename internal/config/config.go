package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"trennkal/internal/holiday"
)

// APIConfig describes the REST backend the tool talks to.
type APIConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:5001".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token, when set, is sent as a bearer token on every request.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`
	// TimeoutSeconds bounds each request; 0 means the default (15s).
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the serve mode.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// HolidayInterval is one blackout range in the configuration file,
// inclusive on both ends, dates as YYYY-MM-DD.
type HolidayInterval struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Config is the top-level application configuration.
type Config struct {
	// API is the external backend connection.
	API APIConfig `yaml:"api" json:"api"`

	// GroupID is the default group operated on when no --group flag is
	// given.
	GroupID string `yaml:"group_id" json:"group_id"`

	// Listen is the HTTP listen address for the serve mode.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone sessions are anchored in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// refreshing the attendance snapshot in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FeedHorizonDays is how far ahead the iCalendar feed reaches.
	FeedHorizonDays int `yaml:"feed_horizon_days" json:"feed_horizon_days"`

	// CacheDir, when set, enables the conditional-GET disk cache of the
	// API client.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`

	// Holidays is the blackout table used by recurrence generation.
	// Data, not logic: updating the season's breaks never touches code.
	Holidays []HolidayInterval `yaml:"holidays" json:"holidays"`

	// BasicAuth, if non-nil, protects all serve-mode endpoints except
	// /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration with the
// Estonian school-holiday table preloaded.
func DefaultConfig() *Config {
	intervals := holiday.EstonianSchoolHolidays()
	holidays := make([]HolidayInterval, 0, len(intervals))
	for _, iv := range intervals {
		holidays = append(holidays, HolidayInterval{Start: iv.Start, End: iv.End})
	}
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:5001",
			TimeoutSeconds: 15,
		},
		Listen:          "127.0.0.1:8080",
		Timezone:        "Europe/Tallinn",
		RefreshCron:     "*/15 * * * *",
		FeedHorizonDays: 120,
		Holidays:        holidays,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:5001"
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 15
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Tallinn"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.FeedHorizonDays <= 0 {
		c.FeedHorizonDays = 120
	}
	if c.Holidays == nil {
		c.Holidays = []HolidayInterval{}
	}
}

// Timeout returns the API timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Location resolves the configured timezone, falling back to the local
// zone on failure.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Calendar validates the configured blackout table and builds the
// holiday calendar from it.
func (c *Config) Calendar() (*holiday.Calendar, error) {
	intervals := make([]holiday.Interval, 0, len(c.Holidays))
	for _, iv := range c.Holidays {
		intervals = append(intervals, holiday.Interval{Start: iv.Start, End: iv.End})
	}
	return holiday.New(intervals)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory, write a
//     default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so the
				// caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration to path atomically (temp file + rename)
// with 0600 permissions, creating the parent directory when needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".trennkal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return nil
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
