package config

import (
	"errors"
	"strconv"
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
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Scheduler   SchedulerConfig
	Persistence PersistenceConfig
	Cache       CacheConfig
	Metrics     MetricsConfig
}

type DatabaseConfig struct {
	Enabled      bool
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
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes scheduling sessions and the default constraint set.
type SchedulerConfig struct {
	Enabled         bool
	SessionTTL      time.Duration
	ReaperSpec      string
	MaxSessions     int
	GenerateTimeout time.Duration
	CoreSubjects    []string
	// Weights overrides default soft constraint weights by constraint id.
	Weights map[string]float64
	// Disabled lists soft constraints switched off by default.
	Disabled []string
}

// PersistenceConfig controls the background writer for accepted timetables.
type PersistenceConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// CacheConfig governs the Redis read-through cache for workload views.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:         v.GetBool("ENABLE_SCHEDULER"),
		SessionTTL:      parseDuration(v.GetString("SCHEDULER_SESSION_TTL"), 2*time.Hour),
		ReaperSpec:      v.GetString("SCHEDULER_REAPER_SPEC"),
		MaxSessions:     v.GetInt("SCHEDULER_MAX_SESSIONS"),
		GenerateTimeout: parseDuration(v.GetString("SCHEDULER_GENERATE_TIMEOUT"), 2*time.Minute),
		CoreSubjects:    splitAndTrim(v.GetString("SCHEDULER_CORE_SUBJECTS")),
		Weights:         parseWeights(v.GetString("SCHEDULER_WEIGHTS")),
		Disabled:        splitAndTrim(v.GetString("SCHEDULER_DISABLED_CONSTRAINTS")),
	}

	cfg.Persistence = PersistenceConfig{
		Enabled:    v.GetBool("ENABLE_TIMETABLE_PERSISTENCE"),
		Workers:    v.GetInt("PERSIST_WORKERS"),
		BufferSize: v.GetInt("PERSIST_BUFFER_SIZE"),
		MaxRetries: v.GetInt("PERSIST_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("PERSIST_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
		Path:    v.GetString("METRICS_PATH"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_SESSION_TTL", "2h")
	v.SetDefault("SCHEDULER_REAPER_SPEC", "@every 1m")
	v.SetDefault("SCHEDULER_MAX_SESSIONS", 64)
	v.SetDefault("SCHEDULER_GENERATE_TIMEOUT", "2m")
	v.SetDefault("SCHEDULER_CORE_SUBJECTS", "")
	v.SetDefault("SCHEDULER_WEIGHTS", "")
	v.SetDefault("SCHEDULER_DISABLED_CONSTRAINTS", "")

	v.SetDefault("ENABLE_TIMETABLE_PERSISTENCE", false)
	v.SetDefault("PERSIST_WORKERS", 1)
	v.SetDefault("PERSIST_BUFFER_SIZE", 16)
	v.SetDefault("PERSIST_MAX_RETRIES", 3)
	v.SetDefault("PERSIST_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("METRICS_PATH", "/metrics")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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

// parseWeights reads "id=weight" pairs; malformed pairs are skipped.
func parseWeights(raw string) map[string]float64 {
	weights := make(map[string]float64)
	for _, pair := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		weights[strings.TrimSpace(key)] = weight
	}
	return weights
}
