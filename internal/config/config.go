package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// MaxBatchCeiling is the largest number of mutations the store accepts in one commit.
const MaxBatchCeiling = 500

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI             string
	MongoDbName          string
	MongoUseTransactions bool

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Server
	ApiPort                  string
	PublicRateLimitPerSecond float64 // per client, public endpoints only
	PublicRateLimitBurst     int

	// Credentials accepted on lifecycle endpoints
	CronSecret  string
	AdminSecret string

	// Lifecycle policy
	FreeActiveWindow    time.Duration
	PremiumActiveWindow time.Duration
	ArchiveDuration     time.Duration
	GracePeriod         time.Duration

	// Lifecycle execution
	BatchCeiling              int
	FavoriteLookupConcurrency int
	ExpirationTolerance       time.Duration
	CommitRatePerSecond       float64 // 0 disables throttling
	FavoriteSweepLimit        int
	RunSummaryTTL             time.Duration

	// Scheduler (cron specs, UTC)
	ArchiveCron    string
	MigrateTTLCron string
	CleanupCron    string
	SweepCron      string

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// AWS S3 (listing images)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getBool := func(key, defaultValue string) (bool, error) {
		v, err := strconv.ParseBool(getEnv(key, defaultValue))
		if err != nil {
			return false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getDuration := func(key, defaultValue string, unit time.Duration) (time.Duration, error) {
		v, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("invalid %s: must not be negative", key)
		}
		return time.Duration(v) * unit, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "marketplace")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.CronSecret, err = getRequiredEnv("CRON_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.AdminSecret, err = getRequiredEnv("ADMIN_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ArchiveCron = getEnv("ARCHIVE_CRON", "0 * * * *")
	cfg.MigrateTTLCron = getEnv("MIGRATE_TTL_CRON", "30 3 * * *")
	cfg.CleanupCron = getEnv("CLEANUP_CRON", "0 */2 * * *")
	cfg.SweepCron = getEnv("SWEEP_CRON", "0 */4 * * *")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogPath = getEnv("LOG_PATH", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")

	// Load numeric, boolean and time duration values with defaults and parsing
	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.MongoUseTransactions, err = getBool("MONGO_USE_TRANSACTIONS", "true"); err != nil {
		return nil, err
	}
	if cfg.FreeActiveWindow, err = getDuration("FREE_ACTIVE_WINDOW_HOURS", "48", time.Hour); err != nil {
		return nil, err
	}
	if cfg.PremiumActiveWindow, err = getDuration("PREMIUM_ACTIVE_WINDOW_DAYS", "30", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ArchiveDuration, err = getDuration("ARCHIVE_DURATION_DAYS", "7", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.GracePeriod, err = getDuration("GRACE_PERIOD_HOURS", "24", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ExpirationTolerance, err = getDuration("EXPIRATION_TOLERANCE_MINUTES", "60", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RunSummaryTTL, err = getDuration("RUN_SUMMARY_TTL_HOURS", "168", time.Hour); err != nil {
		return nil, err
	}
	if cfg.BatchCeiling, err = getInt("BATCH_CEILING", "500"); err != nil {
		return nil, err
	}
	if cfg.FavoriteLookupConcurrency, err = getInt("FAVORITE_LOOKUP_CONCURRENCY", "10"); err != nil {
		return nil, err
	}
	if cfg.FavoriteSweepLimit, err = getInt("FAVORITE_SWEEP_LIMIT", "2000"); err != nil {
		return nil, err
	}
	cfg.CommitRatePerSecond, err = strconv.ParseFloat(getEnv("COMMIT_RATE_PER_SECOND", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid COMMIT_RATE_PER_SECOND: %w", err)
	}

	cfg.PublicRateLimitPerSecond, err = strconv.ParseFloat(getEnv("PUBLIC_RATE_LIMIT_PER_SECOND", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLIC_RATE_LIMIT_PER_SECOND: %w", err)
	}
	if cfg.PublicRateLimitBurst, err = getInt("PUBLIC_RATE_LIMIT_BURST", "20"); err != nil {
		return nil, err
	}

	// Logging
	if cfg.LogMaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", "100"); err != nil {
		return nil, err
	}
	if cfg.LogMaxBackups, err = getInt("LOG_MAX_BACKUPS", "3"); err != nil {
		return nil, err
	}
	if cfg.LogMaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", "7"); err != nil {
		return nil, err
	}
	if cfg.LogCompress, err = getBool("LOG_COMPRESS", "false"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that parsing alone cannot catch.
func (c *Config) Validate() error {
	if c.BatchCeiling < 1 || c.BatchCeiling > MaxBatchCeiling {
		return fmt.Errorf("invalid BATCH_CEILING: %d (must be between 1 and %d)", c.BatchCeiling, MaxBatchCeiling)
	}
	if c.FavoriteLookupConcurrency < 1 {
		return fmt.Errorf("invalid FAVORITE_LOOKUP_CONCURRENCY: %d", c.FavoriteLookupConcurrency)
	}
	if c.FavoriteSweepLimit < 1 {
		return fmt.Errorf("invalid FAVORITE_SWEEP_LIMIT: %d", c.FavoriteSweepLimit)
	}
	if c.CommitRatePerSecond < 0 {
		return fmt.Errorf("invalid COMMIT_RATE_PER_SECOND: %v", c.CommitRatePerSecond)
	}
	if c.PublicRateLimitPerSecond < 0 || c.PublicRateLimitBurst < 1 {
		return fmt.Errorf("invalid public rate limit: %v/s, burst %d", c.PublicRateLimitPerSecond, c.PublicRateLimitBurst)
	}
	if c.CronSecret == c.AdminSecret {
		return fmt.Errorf("CRON_SECRET and ADMIN_SECRET must differ")
	}
	if c.ArchiveDuration <= 0 || c.GracePeriod <= 0 {
		return fmt.Errorf("ARCHIVE_DURATION_DAYS and GRACE_PERIOD_HOURS must be positive")
	}
	// An empty spec disables that job.
	for key, spec := range map[string]string{
		"ARCHIVE_CRON":     c.ArchiveCron,
		"MIGRATE_TTL_CRON": c.MigrateTTLCron,
		"CLEANUP_CRON":     c.CleanupCron,
		"SWEEP_CRON":       c.SweepCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, spec, err)
		}
	}
	return nil
}
