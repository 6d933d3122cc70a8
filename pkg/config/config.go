package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	PlatformURL string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	SIRH     SIRHConfig
	Sync     SyncConfig
	SMTP     SMTPConfig
	NATS     NATSConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SIRHConfig describes how the external HR registry is reached.
type SIRHConfig struct {
	BaseURL           string
	APIToken          string
	Timeout           time.Duration
	RateLimit         float64
	RateBurst         int
	PageSize          int
	SessionsCacheTTL  time.Duration
	DefaultRegistries []string
}

// SyncConfig drives the periodic roster synchronization and manual sync workers.
type SyncConfig struct {
	SchedulerEnabled bool
	Schedule         string
	ManualWorkers    int
	ManualRetries    int
	ManualRetryDelay time.Duration
	// ManualRateLimit caps interactive sync requests per actor and second. Zero disables it.
	ManualRateLimit float64
	ManualRateBurst int
}

// SMTPConfig configures the notification mailer. An empty host disables delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NATSConfig configures the optional sync event publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PlatformURL = strings.TrimRight(v.GetString("PLATFORM_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	pageSize := v.GetInt("SIRH_PAGE_SIZE")
	if pageSize <= 0 {
		pageSize = 20
	}
	cfg.SIRH = SIRHConfig{
		BaseURL:           strings.TrimRight(v.GetString("SIRH_BASE_URL"), "/"),
		APIToken:          v.GetString("SIRH_API_TOKEN"),
		Timeout:           parseDuration(v.GetString("SIRH_TIMEOUT"), 30*time.Second),
		RateLimit:         v.GetFloat64("SIRH_RATE_LIMIT"),
		RateBurst:         v.GetInt("SIRH_RATE_BURST"),
		PageSize:          pageSize,
		SessionsCacheTTL:  parseDuration(v.GetString("SIRH_SESSIONS_CACHE_TTL"), 5*time.Minute),
		DefaultRegistries: splitAndTrim(v.GetString("SIRH_CODES")),
	}

	cfg.Sync = SyncConfig{
		SchedulerEnabled: v.GetBool("ENABLE_SYNC_SCHEDULER"),
		Schedule:         v.GetString("SYNC_SCHEDULE"),
		ManualWorkers:    v.GetInt("MANUAL_SYNC_WORKERS"),
		ManualRetries:    v.GetInt("MANUAL_SYNC_RETRIES"),
		ManualRetryDelay: parseDuration(v.GetString("MANUAL_SYNC_RETRY_DELAY"), 30*time.Second),
		ManualRateLimit:  v.GetFloat64("MANUAL_SYNC_RATE_LIMIT"),
		ManualRateBurst:  v.GetInt("MANUAL_SYNC_RATE_BURST"),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
	}

	cfg.NATS = NATSConfig{
		URL:           v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PLATFORM_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sirh_sync")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SIRH_BASE_URL", "http://localhost:9090/api")
	v.SetDefault("SIRH_API_TOKEN", "")
	v.SetDefault("SIRH_TIMEOUT", "30s")
	v.SetDefault("SIRH_RATE_LIMIT", 5)
	v.SetDefault("SIRH_RATE_BURST", 5)
	v.SetDefault("SIRH_PAGE_SIZE", 20)
	v.SetDefault("SIRH_SESSIONS_CACHE_TTL", "5m")
	v.SetDefault("SIRH_CODES", "")

	v.SetDefault("ENABLE_SYNC_SCHEDULER", true)
	v.SetDefault("SYNC_SCHEDULE", "0 2 * * *")
	v.SetDefault("MANUAL_SYNC_WORKERS", 1)
	v.SetDefault("MANUAL_SYNC_RETRIES", 2)
	v.SetDefault("MANUAL_SYNC_RETRY_DELAY", "30s")
	v.SetDefault("MANUAL_SYNC_RATE_LIMIT", 0.2)
	v.SetDefault("MANUAL_SYNC_RATE_BURST", 3)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "sirh.sync")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
