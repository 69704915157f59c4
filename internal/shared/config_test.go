package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./ytexport.db" {
			t.Errorf("expected database path ./ytexport.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Quota.DailyCeiling != 10000 {
			t.Errorf("expected daily ceiling 10000, got %d", config.Quota.DailyCeiling)
		}

		if config.Quota.ResetTimezone != "America/Los_Angeles" {
			t.Errorf("expected reset timezone America/Los_Angeles, got %s", config.Quota.ResetTimezone)
		}

		if config.AutoResume.BackoffBase.Duration != time.Minute {
			t.Errorf("expected backoff base 1m, got %s", config.AutoResume.BackoffBase)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[quota]
daily_ceiling = 500
reset_timezone = "UTC"

[auto_resume]
backoff_base = "30s"
backoff_max = "10m"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Quota.DailyCeiling != 500 {
			t.Errorf("expected ceiling 500, got %d", config.Quota.DailyCeiling)
		}
		if config.Quota.PlaylistCost != 2 {
			t.Errorf("expected default playlist cost 2 to survive partial file, got %d", config.Quota.PlaylistCost)
		}
		if config.AutoResume.BackoffMax.Duration != 10*time.Minute {
			t.Errorf("expected backoff max 10m, got %s", config.AutoResume.BackoffMax)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.Quota.ResetTimezone = "Mars/Olympus_Mons"
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for unknown zone, got %v", err)
		}

		config = DefaultConfig()
		config.Quota.DailyCeiling = 0
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for zero ceiling, got %v", err)
		}

		config = DefaultConfig()
		config.AutoResume.BackoffMax = Duration{time.Second}
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig when max < base, got %v", err)
		}

		config = DefaultConfig()
		config.AutoResume.LeaseTTL = Duration{2 * time.Minute}
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for a lease shorter than a slow fetch, got %v", err)
		}

		config.YouTube.Timeout = Duration{10 * time.Second}
		if err := config.Validate(); err != nil {
			t.Errorf("2m lease should cover 10s requests: %v", err)
		}
	})

	t.Run("WorstCaseFetch", func(t *testing.T) {
		tests := []struct {
			name string
			api  YouTubeAPIConfig
			want time.Duration
		}{
			{"defaults", YouTubeAPIConfig{}, 60 * time.Second},
			{"one retry", YouTubeAPIConfig{Timeout: Duration{30 * time.Second}, RetryCount: 1}, 130 * time.Second},
			{"negative retries", YouTubeAPIConfig{Timeout: Duration{time.Second}, RetryCount: -3}, 2 * time.Second},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.api.WorstCaseFetch(); got != tt.want {
					t.Errorf("WorstCaseFetch() = %s, want %s", got, tt.want)
				}
			})
		}

		if got := LeaseBudget(5 * time.Minute); got != 4*time.Minute {
			t.Errorf("LeaseBudget(5m) = %s, want 4m", got)
		}
	})

	t.Run("Bad duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[auto_resume]\nlease_ttl = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})
}
