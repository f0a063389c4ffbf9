package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	IsProduction   bool
	EnableDBCheck  bool
	JWTSecret      string
	MigrationsPath string

	RateLimit          string
	CORSAllowedOrigins []string

	RedisURL string

	AutoSaveDebounce        time.Duration
	AutoSaveLockTTL         time.Duration
	AutoSaveStatusRetention time.Duration

	AuditRetentionDays   int
	AuditCleanupInterval time.Duration

	// Audit archive sink
	ArchiveS3Bucket    string
	ArchiveS3Region    string
	ArchiveS3Endpoint  string
	ArchiveS3PathStyle bool

	// External calculations
	CalcPythonPath         string
	CalcScriptsDir         string
	CalcTimeout            time.Duration
	CalcBreakerFailures    int
	CalcBreakerOpenTimeout time.Duration
	CalcKeepRuns           int

	PostHogAPIKey  string
	MetricsEnabled bool
}

const defaultJWTSecret = "a-very-secret-key-should-be-longer-and-random"

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("MIGRATIONS_PATH", "file://migrations")
	viper.SetDefault("RATE_LIMIT", "300-M")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("AUTOSAVE_DEBOUNCE", "2s")
	viper.SetDefault("AUTOSAVE_LOCK_TTL", "10s")
	viper.SetDefault("AUTOSAVE_STATUS_RETENTION", "1h")
	viper.SetDefault("AUDIT_RETENTION_DAYS", 365)
	viper.SetDefault("AUDIT_CLEANUP_INTERVAL", "24h")
	viper.SetDefault("ARCHIVE_S3_BUCKET", "")
	viper.SetDefault("ARCHIVE_S3_REGION", "us-east-1")
	viper.SetDefault("ARCHIVE_S3_ENDPOINT", "")
	viper.SetDefault("ARCHIVE_S3_PATH_STYLE", false)
	viper.SetDefault("CALC_PYTHON_PATH", "python3")
	viper.SetDefault("CALC_SCRIPTS_DIR", "scripts")
	viper.SetDefault("CALC_TIMEOUT", "5m")
	viper.SetDefault("CALC_BREAKER_FAILURES", 5)
	viper.SetDefault("CALC_BREAKER_OPEN_TIMEOUT", "60s")
	viper.SetDefault("CALC_KEEP_RUNS", 10)
	viper.SetDefault("POSTHOG_API_KEY", "")
	viper.SetDefault("METRICS_ENABLED", true)

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "" || cfg.JWTSecret == defaultJWTSecret {
		cfg.JWTSecret = defaultJWTSecret // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")
	cfg.MigrationsPath = viper.GetString("MIGRATIONS_PATH")
	cfg.RateLimit = viper.GetString("RATE_LIMIT")
	cfg.CORSAllowedOrigins = splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))
	cfg.RedisURL = viper.GetString("REDIS_URL")

	cfg.AutoSaveDebounce = durationOrDefault("AUTOSAVE_DEBOUNCE", 2*time.Second)
	cfg.AutoSaveLockTTL = durationOrDefault("AUTOSAVE_LOCK_TTL", 10*time.Second)
	cfg.AutoSaveStatusRetention = durationOrDefault("AUTOSAVE_STATUS_RETENTION", time.Hour)

	cfg.AuditRetentionDays = viper.GetInt("AUDIT_RETENTION_DAYS")
	if cfg.AuditRetentionDays <= 0 {
		cfg.AuditRetentionDays = 365
		log.Printf("Warning: AUDIT_RETENTION_DAYS must be positive. Defaulting to %d.\n", cfg.AuditRetentionDays)
	}
	cfg.AuditCleanupInterval = durationOrDefault("AUDIT_CLEANUP_INTERVAL", 24*time.Hour)

	cfg.ArchiveS3Bucket = viper.GetString("ARCHIVE_S3_BUCKET")
	cfg.ArchiveS3Region = viper.GetString("ARCHIVE_S3_REGION")
	cfg.ArchiveS3Endpoint = viper.GetString("ARCHIVE_S3_ENDPOINT")
	cfg.ArchiveS3PathStyle = viper.GetBool("ARCHIVE_S3_PATH_STYLE")

	cfg.CalcPythonPath = viper.GetString("CALC_PYTHON_PATH")
	cfg.CalcScriptsDir = viper.GetString("CALC_SCRIPTS_DIR")
	cfg.CalcTimeout = durationOrDefault("CALC_TIMEOUT", 5*time.Minute)
	cfg.CalcBreakerFailures = viper.GetInt("CALC_BREAKER_FAILURES")
	if cfg.CalcBreakerFailures <= 0 {
		cfg.CalcBreakerFailures = 5
	}
	cfg.CalcBreakerOpenTimeout = durationOrDefault("CALC_BREAKER_OPEN_TIMEOUT", 60*time.Second)
	cfg.CalcKeepRuns = viper.GetInt("CALC_KEEP_RUNS")
	if cfg.CalcKeepRuns <= 0 {
		cfg.CalcKeepRuns = 10
	}

	cfg.PostHogAPIKey = viper.GetString("POSTHOG_API_KEY")
	if cfg.PostHogAPIKey == "" {
		log.Println("Warning: POSTHOG_API_KEY not set. Analytics will be disabled.")
	}
	cfg.MetricsEnabled = viper.GetBool("METRICS_ENABLED")

	return cfg, nil
}

// durationOrDefault parses key as a duration, falling back to def with a warning.
// A zero duration ("0") is returned as is so callers can treat it as disabled.
func durationOrDefault(key string, def time.Duration) time.Duration {
	raw := viper.GetString(key)
	if raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, def.String())
		}
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
