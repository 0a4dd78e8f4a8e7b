package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// LogMode selects the zap preset: "dev" or "prod".
	LogMode string

	// TokenKey is the hex-encoded 32 byte key used to seal OAuth access
	// tokens stored in source_connections.
	TokenKey string

	GoogleAdsDeveloperToken string
	GoogleAdsAPIVersion     string
	FacebookAPIVersion      string

	// SourceTimeout bounds a single adapter fetch during a backfill.
	SourceTimeout time.Duration

	// BackfillParallelism is the number of sources fetched concurrently
	// for one account.
	BackfillParallelism int

	DefaultBackfillMonths int

	// NightlySchedule is a cron spec (with seconds). Empty disables the
	// nightly incremental backfill and rollups.
	NightlySchedule string

	// RetentionDays is the age after which performance rows are purged by
	// the scheduler. Zero keeps history forever.
	RetentionDays int
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:               getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:           getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:             os.Getenv("APP_DATABASE_URL"),
		ListenAddr:              getenv("APP_LISTEN_ADDR", ":8080"),
		LogMode:                 getenv("APP_LOG_MODE", "dev"),
		TokenKey:                os.Getenv("APP_TOKEN_KEY"),
		GoogleAdsDeveloperToken: os.Getenv("APP_GOOGLE_ADS_DEVELOPER_TOKEN"),
		GoogleAdsAPIVersion:     getenv("APP_GOOGLE_ADS_API_VERSION", "v17"),
		FacebookAPIVersion:      getenv("APP_FACEBOOK_API_VERSION", "v20.0"),
		SourceTimeout:           time.Duration(getint("APP_SOURCE_TIMEOUT_SECONDS", 120)) * time.Second,
		BackfillParallelism:     getint("APP_BACKFILL_PARALLELISM", 3),
		DefaultBackfillMonths:   getint("APP_DEFAULT_BACKFILL_MONTHS", 12),
		RetentionDays:           getint("APP_RETENTION_DAYS", 0),
	}

	// An explicitly empty APP_NIGHTLY_SCHEDULE turns the scheduler off.
	if v, ok := os.LookupEnv("APP_NIGHTLY_SCHEDULE"); ok {
		cfg.NightlySchedule = strings.TrimSpace(v)
	} else {
		cfg.NightlySchedule = "0 30 3 * * *"
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
