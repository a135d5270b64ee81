// ABOUTME: Application configuration loaded from TOML at XDG paths
// ABOUTME: Applies defaults for missing fields and HUBSYNC_* environment overrides
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const (
	AppName               = "hubsync"
	ConfigFileName        = "config.toml"
	DefaultHubSpotBaseURL = "https://api.hubapi.com"
	DefaultRequestTimeout = 30 * time.Second
	// DefaultBatchInterval keeps outbound batches at ten per second.
	DefaultBatchInterval = 100 * time.Millisecond
	DefaultUsersPageSize = 5000
	DefaultSchedule      = "@daily"
)

// DefaultOwnedPreferences are the marketing categories the platform owns.
var DefaultOwnedPreferences = []string{"Futures eLearning", "Training Bulletin"}

// Config is the root configuration.
type Config struct {
	DBPath   string         `toml:"db_path"`
	HubSpot  HubSpotConfig  `toml:"hubspot"`
	Sync     SyncConfig     `toml:"sync"`
	Platform PlatformConfig `toml:"platform"`
}

type HubSpotConfig struct {
	BaseURL        string   `toml:"base_url"`
	RequestTimeout Duration `toml:"request_timeout"`
	BatchInterval  Duration `toml:"batch_interval"`
}

type SyncConfig struct {
	UsersPageSize    int      `toml:"users_page_size"`
	OwnedPreferences []string `toml:"owned_preferences"`
	Schedule         string   `toml:"schedule"`
}

// PlatformConfig points at the platform's Postgres database.
// When DSN is empty, sites and users are read from the local sqlite database.
type PlatformConfig struct {
	DSN string `toml:"dsn"`
}

// Duration decodes TOML strings such as "30s" or "100ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Dir returns the XDG config directory for hubsync.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(Dir(), ConfigFileName)
}

// DefaultDBPath returns the default sqlite database path.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, AppName, "hubsync.db")
}

// Default returns a config with every field set to its default.
func Default() Config {
	return Config{
		DBPath: DefaultDBPath(),
		HubSpot: HubSpotConfig{
			BaseURL:        DefaultHubSpotBaseURL,
			RequestTimeout: Duration{DefaultRequestTimeout},
			BatchInterval:  Duration{DefaultBatchInterval},
		},
		Sync: SyncConfig{
			UsersPageSize:    DefaultUsersPageSize,
			OwnedPreferences: append([]string(nil), DefaultOwnedPreferences...),
			Schedule:         DefaultSchedule,
		},
	}
}

// Load reads the TOML file at path (Path() when empty), fills in defaults for
// missing fields and applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = Path()
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to stat config file: %w", err)
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.HubSpot.BaseURL == "" {
		cfg.HubSpot.BaseURL = DefaultHubSpotBaseURL
	}
	if cfg.HubSpot.RequestTimeout.Duration <= 0 {
		cfg.HubSpot.RequestTimeout = Duration{DefaultRequestTimeout}
	}
	if cfg.HubSpot.BatchInterval.Duration < 0 {
		cfg.HubSpot.BatchInterval = Duration{DefaultBatchInterval}
	}
	if cfg.Sync.UsersPageSize <= 0 {
		cfg.Sync.UsersPageSize = DefaultUsersPageSize
	}
	if len(cfg.Sync.OwnedPreferences) == 0 {
		cfg.Sync.OwnedPreferences = append([]string(nil), DefaultOwnedPreferences...)
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = DefaultSchedule
	}
}

// applyEnvOverrides applies environment variable overrides:
// - HUBSYNC_DB_PATH
// - HUBSYNC_HUBSPOT_BASE_URL
// - HUBSYNC_REQUEST_TIMEOUT
// - HUBSYNC_PLATFORM_DSN
// - HUBSYNC_SCHEDULE.
func applyEnvOverrides(cfg *Config) error {
	if dbPath := os.Getenv("HUBSYNC_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if baseURL := os.Getenv("HUBSYNC_HUBSPOT_BASE_URL"); baseURL != "" {
		cfg.HubSpot.BaseURL = baseURL
	}
	if timeout := os.Getenv("HUBSYNC_REQUEST_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid HUBSYNC_REQUEST_TIMEOUT %q: %w", timeout, err)
		}
		cfg.HubSpot.RequestTimeout = Duration{d}
	}
	if dsn := os.Getenv("HUBSYNC_PLATFORM_DSN"); dsn != "" {
		cfg.Platform.DSN = dsn
	}
	if schedule := os.Getenv("HUBSYNC_SCHEDULE"); schedule != "" {
		cfg.Sync.Schedule = schedule
	}
	return nil
}
