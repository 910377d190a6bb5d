// Package config handles loading the recommender's configuration file.
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

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultRecentPRs      = 5
	DefaultMaxConcurrency = 10
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultAddr           = "127.0.0.1:8080"
	DefaultRetryAttempts  = 1
)

// CacheBackend values.
const (
	CacheMemory   = "memory"
	CacheDisk     = "disk"
	CachePostgres = "postgres"
)

// ParseError indicates a configuration file exists but contains invalid content.
// This is distinct from "file not found", which yields the default config.
type ParseError struct {
	Err  error
	Path string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid config at %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// App holds GitHub App credentials, used instead of a personal access token
// when the service runs unattended.
type App struct {
	// ID is the numeric GitHub App ID.
	ID string `yaml:"id"`
	// KeyPath is the absolute path to the App's PEM private key.
	KeyPath string `yaml:"key_path"`
	// InstallationID is the installation whose token is used.
	InstallationID int64 `yaml:"installation_id"`
}

// Enabled reports whether App credentials are configured.
func (a App) Enabled() bool {
	return a.ID != "" || a.KeyPath != "" || a.InstallationID != 0
}

// Config is the recommender configuration.
type Config struct {
	// GitHubAPIURL overrides the REST API root (GitHub Enterprise, tests).
	GitHubAPIURL string `yaml:"github_api_url"`
	// Cache selects the cache substrate: memory, disk or postgres.
	// Empty picks postgres when DatabaseURL is set, otherwise disk.
	Cache string `yaml:"cache"`
	// CacheDir is where the disk cache keeps its files.
	CacheDir string `yaml:"cache_dir"`
	// DatabaseURL is the PostgreSQL DSN for the postgres cache.
	DatabaseURL string `yaml:"database_url"`
	// Addr is the listen address for serve. The API acts with the
	// configured credential for any caller, so it defaults to loopback.
	Addr string `yaml:"addr"`
	// WatchOrg subscribes serve to pull request events for this organization.
	WatchOrg string `yaml:"watch_org"`
	App      App    `yaml:"app"`
	// HTTPTimeout bounds each GitHub API request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// RetryAttempts is the total attempts for rate-limited or 5xx responses.
	RetryAttempts int `yaml:"retry_attempts"`
	// RecentPRs is how many merged PRs feed a suggestion.
	RecentPRs int `yaml:"recent_prs"`
	// MaxConcurrency bounds in-flight per-PR lookups.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Addr:           DefaultAddr,
		HTTPTimeout:    DefaultHTTPTimeout,
		RetryAttempts:  DefaultRetryAttempts,
		RecentPRs:      DefaultRecentPRs,
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/reviewer-recommender/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", zerr.Wrap(err, "failed to locate user config directory")
	}
	return filepath.Join(dir, "reviewer-recommender", "config.yaml"), nil
}

// DefaultCacheDir returns the user cache directory for the disk cache.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", zerr.Wrap(err, "failed to locate user cache directory")
	}
	return filepath.Join(dir, "reviewer-recommender"), nil
}

// Load reads the config at path over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, zerr.With(zerr.Wrap(err, "failed to read config"), "path", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, &ParseError{Path: "environment", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GITHUB_API_URL"); v != "" {
		c.GitHubAPIURL = v
	}
	if v := getenv("REVIEWER_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("PORT"); v != "" {
		c.Addr = ":" + v
	}
	if v := getenv("GITHUB_APP_ID"); v != "" {
		c.App.ID = v
	}
	if v := getenv("GITHUB_APP_KEY_PATH"); v != "" {
		c.App.KeyPath = v
	}
	if v := getenv("GITHUB_APP_INSTALLATION_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "GITHUB_APP_INSTALLATION_ID must be numeric"), "value", v)
		}
		c.App.InstallationID = id
	}
	return nil
}

// Validate checks field ranges and fills in derived defaults.
func (c *Config) Validate() error {
	if c.RecentPRs <= 0 || c.RecentPRs > 100 {
		return fmt.Errorf("recent_prs must be between 1 and 100, got %d", c.RecentPRs)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}

	c.Cache = strings.ToLower(strings.TrimSpace(c.Cache))
	if c.Cache == "" {
		c.Cache = CacheDisk
		if c.DatabaseURL != "" {
			c.Cache = CachePostgres
		}
	}
	switch c.Cache {
	case CacheMemory, CacheDisk:
	case CachePostgres:
		if c.DatabaseURL == "" {
			return errors.New("cache postgres requires database_url")
		}
	default:
		return fmt.Errorf("unknown cache %q (want memory, disk or postgres)", c.Cache)
	}

	if c.CacheDir != "" && !filepath.IsAbs(c.CacheDir) {
		return fmt.Errorf("cache_dir must be an absolute path, got %q", c.CacheDir)
	}

	if c.App.Enabled() && (c.App.ID == "" || c.App.KeyPath == "" || c.App.InstallationID <= 0) {
		return errors.New("app requires id, key_path and installation_id together")
	}
	return nil
}
