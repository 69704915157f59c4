package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	YouTube     YouTubeAPIConfig  `toml:"youtube"`
	Quota       QuotaConfig       `toml:"quota"`
	AutoResume  AutoResumeConfig  `toml:"auto_resume"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	YouTube YouTubeConfig `toml:"youtube"`
}

// YouTubeConfig contains YouTube Data API credentials.
//
// APIKey is enough for public playlists and channels; the OAuth client is needed for private ones.
type YouTubeConfig struct {
	APIKey       string `toml:"api_key"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
}

// YouTubeAPIConfig contains transport settings for the YouTube Data API client.
type YouTubeAPIConfig struct {
	BaseURL           string   `toml:"base_url"`
	PageSize          int      `toml:"page_size"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           Duration `toml:"timeout"`
	RetryCount        int      `toml:"retry_count"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	StatusCacheTTL Duration `toml:"status_cache_ttl"`
}

// QuotaConfig describes the daily remote-API budget per user.
//
// The day rolls over at midnight in ResetTimezone.
type QuotaConfig struct {
	DailyCeiling  int    `toml:"daily_ceiling"`
	ResetTimezone string `toml:"reset_timezone"`
	PlaylistCost  int    `toml:"playlist_cost"`
	ChannelCost   int    `toml:"channel_cost"`
}

// AutoResumeConfig controls the scheduler tick, the per-user lease and transient-error backoff.
type AutoResumeConfig struct {
	TickInterval      Duration `toml:"tick_interval"`
	LeaseTTL          Duration `toml:"lease_ttl"`
	BackoffBase       Duration `toml:"backoff_base"`
	BackoffMax        Duration `toml:"backoff_max"`
	MaxBatchesPerTick int      `toml:"max_batches_per_tick"`
}

// Bounds of one YouTube page fetch: a list call plus the videos.list call for languages, each retried with a
// wait of at most RetryMaxWait.
const (
	CallsPerPage          = 2
	DefaultRequestTimeout = 30 * time.Second
	RetryMaxWait          = 5 * time.Second
)

// LeaseBudget is how long work guarded by a lease of the given ttl may run. The rest of the ttl is left for the
// holder to commit and release.
func LeaseBudget(ttl time.Duration) time.Duration {
	return ttl - ttl/5
}

// WorstCaseFetch is the longest one page fetch can take with these transport settings.
func (y YouTubeAPIConfig) WorstCaseFetch() time.Duration {
	timeout := y.Timeout.Duration
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	retries := max(y.RetryCount, 0)
	perCall := timeout*time.Duration(retries+1) + RetryMaxWait*time.Duration(retries)
	return perCall * CallsPerPage
}

// Duration is a [time.Duration] that reads from TOML strings such as "5m" or "1h30m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Location resolves the quota reset time zone.
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.ResetTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(q.ResetTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: reset_timezone %q: %v", ErrInvalidConfig, q.ResetTimezone, err)
	}
	return loc, nil
}

// Validate checks the values the export pipeline relies on.
func (c *Config) Validate() error {
	if c.Quota.DailyCeiling <= 0 {
		return fmt.Errorf("%w: quota.daily_ceiling must be positive", ErrInvalidConfig)
	}
	if c.Quota.PlaylistCost <= 0 || c.Quota.ChannelCost <= 0 {
		return fmt.Errorf("%w: quota costs must be positive", ErrInvalidConfig)
	}
	if _, err := c.Quota.Location(); err != nil {
		return err
	}
	if c.AutoResume.LeaseTTL.Duration <= 0 {
		return fmt.Errorf("%w: auto_resume.lease_ttl must be positive", ErrInvalidConfig)
	}
	if worst := c.YouTube.WorstCaseFetch(); LeaseBudget(c.AutoResume.LeaseTTL.Duration) < worst {
		return fmt.Errorf("%w: auto_resume.lease_ttl %s is too short for a page fetch that may take %s",
			ErrInvalidConfig, c.AutoResume.LeaseTTL.Duration, worst)
	}
	if c.AutoResume.BackoffBase.Duration <= 0 || c.AutoResume.BackoffMax.Duration < c.AutoResume.BackoffBase.Duration {
		return fmt.Errorf("%w: auto_resume backoff must satisfy 0 < base <= max", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
