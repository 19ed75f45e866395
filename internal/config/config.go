// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultBaseURL       = "https://api.searchads.apple.com/api/v4"
	DefaultCampaignsURL  = "https://api.searchads.apple.com/api/v5"
	DefaultTimeout       = 60 * time.Second
	DefaultRateLimitRPS  = 5
	DefaultRateBurst     = 5
	DefaultMaxChunkDays  = 30
	DefaultDailyJobLimit = 10
	DefaultWait          = 15 * time.Second
	DefaultSelector      = "impression_share_selector"
	DefaultMetricsAddr   = ":9090"
	DefaultSchedule      = "0 6 * * *"
	DefaultLookbackDays  = 7
)

// Config holds the configuration of the search ads extractor.
type Config struct {
	// API access. Credentials are supplied pre-built; nothing here refreshes them.
	BaseURL        string
	CampaignsURL   string
	AccessToken    string
	OrgID          string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Report engine.
	MaxChunkDays  int
	DailyJobLimit int
	Wait          time.Duration
	WaitStrategy  string // "fixed" or "backoff"
	Selector      string
	SelectorDir   string // optional directory of extra selectors

	// Job ledger; empty disables it.
	LedgerDBPath string

	// Sinks. S3 fields are optional — nil when not configured.
	Sink                  string
	S3KeyID               *string
	S3Secret              *string
	S3Endpoint            *string
	S3Region              *string
	GCSKeyFile            string
	AzureConnectionString string

	// Scheduler.
	Schedule     string // cron expression
	LookbackDays int
	MetricsAddr  string

	LogLevel  string // debug, info, warn, error (default "info")
	LogFormat string // json (default) or text

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Config returns true if the S3 credentials are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil
}

// ValidateCredentials checks the values every API call needs.
func (c *Config) ValidateCredentials() error {
	if c.AccessToken == "" {
		return fmt.Errorf("SEARCHADS_ACCESS_TOKEN is required")
	}
	if c.OrgID == "" {
		return fmt.Errorf("SEARCHADS_ORG_ID is required")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numeric or duration values fall back to their default with a warning.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		BaseURL:               envDefault("SEARCHADS_BASE_URL", DefaultBaseURL),
		CampaignsURL:          envDefault("SEARCHADS_CAMPAIGNS_URL", DefaultCampaignsURL),
		AccessToken:           os.Getenv("SEARCHADS_ACCESS_TOKEN"),
		OrgID:                 os.Getenv("SEARCHADS_ORG_ID"),
		WaitStrategy:          envDefault("REPORT_WAIT_STRATEGY", "fixed"),
		Selector:              envDefault("REPORT_SELECTOR", DefaultSelector),
		SelectorDir:           os.Getenv("SELECTOR_DIR"),
		LedgerDBPath:          os.Getenv("LEDGER_DB_PATH"),
		Sink:                  envDefault("SINK", "-"),
		GCSKeyFile:            os.Getenv("GCS_KEY_FILE"),
		AzureConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
		Schedule:              envDefault("SCHEDULE", DefaultSchedule),
		MetricsAddr:           envDefault("METRICS_ADDR", DefaultMetricsAddr),
		LogLevel:              envDefault("LOG_LEVEL", "info"),
		LogFormat:             envDefault("LOG_FORMAT", "json"),
	}

	cfg.Timeout = cfg.durationEnv("SEARCHADS_TIMEOUT", DefaultTimeout)
	cfg.Wait = cfg.durationEnv("REPORT_WAIT", DefaultWait)
	cfg.RateLimitRPS = cfg.floatEnv("SEARCHADS_RATE_LIMIT_RPS", DefaultRateLimitRPS)
	cfg.RateLimitBurst = cfg.intEnv("SEARCHADS_RATE_LIMIT_BURST", DefaultRateBurst)
	cfg.MaxChunkDays = cfg.intEnv("REPORT_MAX_CHUNK_DAYS", DefaultMaxChunkDays)
	cfg.DailyJobLimit = cfg.intEnv("REPORT_DAILY_JOB_LIMIT", DefaultDailyJobLimit)
	cfg.LookbackDays = cfg.intEnv("SYNC_LOOKBACK_DAYS", DefaultLookbackDays)

	// S3 fields are optional — only set if present
	if v := os.Getenv("KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("REGION"); v != "" {
		cfg.S3Region = &v
	}

	if cfg.MaxChunkDays < 1 {
		return nil, fmt.Errorf("REPORT_MAX_CHUNK_DAYS must be at least 1, got %d", cfg.MaxChunkDays)
	}
	if cfg.DailyJobLimit < 0 {
		return nil, fmt.Errorf("REPORT_DAILY_JOB_LIMIT must not be negative, got %d", cfg.DailyJobLimit)
	}
	switch cfg.WaitStrategy {
	case "fixed", "backoff":
	default:
		return nil, fmt.Errorf("REPORT_WAIT_STRATEGY must be 'fixed' or 'backoff', got %q", cfg.WaitStrategy)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown LOG_FORMAT %q, using json", cfg.LogFormat))
		cfg.LogFormat = "json"
	}
	if cfg.Wait < DefaultWait {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("REPORT_WAIT=%s is below the %s baseline; queued reports may be rejected", cfg.Wait, DefaultWait))
	}
	if cfg.AccessToken == "" || cfg.OrgID == "" {
		cfg.Warnings = append(cfg.Warnings, "SEARCHADS_ACCESS_TOKEN or SEARCHADS_ORG_ID not set; sync commands will fail")
	}

	return cfg, nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using %d", key, v, def))
		return def
	}
	return n
}

func (c *Config) floatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using %g", key, v, def))
		return def
	}
	return f
}

func (c *Config) durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using %s", key, v, def))
		return def
	}
	return d
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
