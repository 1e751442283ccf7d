package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// FeedConfig describes a single ICS subscription source.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label, also used as the category of feed events.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WorkingHours is the half-open [Start, End) hour window used for slot suggestion.
type WorkingHours struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// RemindersConfig controls the reminder scheduler.
type RemindersConfig struct {
	// Sweep is a cron schedule for the periodic due-reminder scan.
	Sweep string `yaml:"sweep" json:"sweep"`
	// HorizonHours is how far ahead the sweep and the scheduler look.
	HorizonHours int `yaml:"horizon_hours" json:"horizon_hours"`
	// ToleranceMinutes is the +/- window in which the sweep treats an offset as due.
	ToleranceMinutes int `yaml:"tolerance_minutes" json:"tolerance_minutes"`
	// RetireAfterMinutes is how long after event start a fired entry is kept.
	RetireAfterMinutes int `yaml:"retire_after_minutes" json:"retire_after_minutes"`
	// AlertDurationMs is how long an in-app alert stays visible.
	AlertDurationMs int `yaml:"alert_duration_ms" json:"alert_duration_ms"`
}

// DiscordConfig enables the Discord platform-notification channel when
// both fields are set.
type DiscordConfig struct {
	Token     string `yaml:"token" json:"-"`
	ChannelID string `yaml:"channel_id" json:"channel_id"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for local-calendar arithmetic.
	// "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Database is the SQLite file path. ":memory:" keeps events in memory only.
	Database string `yaml:"database" json:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	WorkingHours WorkingHours `yaml:"working_hours" json:"working_hours"`

	// CategoryHours maps an event category to its preferred start hours, in
	// preference order.
	CategoryHours map[string][]int `yaml:"category_hours" json:"category_hours"`

	// SlotSearchDays caps how many days the slot suggester walks forward.
	SlotSearchDays int `yaml:"slot_search_days" json:"slot_search_days"`

	Reminders RemindersConfig `yaml:"reminders" json:"reminders"`

	// RefreshCron is the cron schedule for feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Feeds is the list of subscribed read-only ICS sources.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// CacheDir stores fetched feed bodies and HTTP cache metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Discord *DiscordConfig `yaml:"discord,omitempty" json:"discord,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultCategoryHours returns the built-in category preferences.
func DefaultCategoryHours() map[string][]int {
	return map[string][]int{
		"Work Meeting": {10, 11, 14, 15},
		"Meal/Lunch":   {12, 13},
		"Gym/Workout":  {16, 9},
		"Personal":     {16, 15},
		"Study":        {9, 10},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "Local",
		Database:       "./daycal.db",
		LogLevel:       "info",
		WorkingHours:   WorkingHours{Start: 9, End: 17},
		CategoryHours:  DefaultCategoryHours(),
		SlotSearchDays: 365,
		Reminders: RemindersConfig{
			Sweep:              "@every 1m",
			HorizonHours:       24,
			ToleranceMinutes:   1,
			RetireAfterMinutes: 60,
			AlertDurationMs:    10000,
		},
		RefreshCron: "*/15 * * * *",
		Feeds:       []FeedConfig{},
		CacheDir:    "./cache/ics-cache",
		Discord:     nil,
		BasicAuth:   nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	// Working hours must be a non-empty window inside one day.
	wh := c.WorkingHours
	if wh.Start < 0 || wh.End > 24 || wh.Start >= wh.End {
		c.WorkingHours = def.WorkingHours
	}
	if c.CategoryHours == nil {
		c.CategoryHours = def.CategoryHours
	}
	if c.SlotSearchDays <= 0 {
		c.SlotSearchDays = def.SlotSearchDays
	}

	r := &c.Reminders
	if r.Sweep == "" {
		r.Sweep = def.Reminders.Sweep
	}
	if r.HorizonHours <= 0 {
		r.HorizonHours = def.Reminders.HorizonHours
	}
	if r.ToleranceMinutes <= 0 {
		r.ToleranceMinutes = def.Reminders.ToleranceMinutes
	}
	if r.RetireAfterMinutes <= 0 {
		r.RetireAfterMinutes = def.Reminders.RetireAfterMinutes
	}
	if r.AlertDurationMs <= 0 {
		r.AlertDurationMs = def.Reminders.AlertDurationMs
	}

	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
}

// ApplyEnv overrides file values with DAYCAL_* environment variables.
// Unset variables leave the config untouched.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DAYCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DAYCAL_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DAYCAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("DAYCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DAYCAL_SLOT_SEARCH_DAYS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.SlotSearchDays = n
		}
	}
	token := os.Getenv("DAYCAL_DISCORD_TOKEN")
	channel := os.Getenv("DAYCAL_DISCORD_CHANNEL")
	if token != "" || channel != "" {
		if c.Discord == nil {
			c.Discord = &DiscordConfig{}
		}
		if token != "" {
			c.Discord.Token = token
		}
		if channel != "" {
			c.Discord.ChannelID = channel
		}
	}
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
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

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	tmp, err := os.CreateTemp(dir, ".daycal-config-*.tmp")
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
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
