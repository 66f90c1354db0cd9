package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"hhresearch/common/cache"
	"hhresearch/common/database"
	"hhresearch/services/research/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HHAPIBaseURL   string
	HHAPITimeout   time.Duration
	HHUserAgent    string
	SearchMaxPages int
	ItemTimeout    time.Duration

	RatesAPIBaseURL   string
	RatesBaseCurrency string
	RatesTimeout      time.Duration

	DefaultArea       string
	DefaultPerPage    int
	DefaultMaxWorkers int
	DefaultRefresh    bool
	Currencies        []string

	TopN         int
	Predict      bool
	PredictMinDF int
	PredictAlpha float64

	CacheBackend  cache.Backend
	CacheDir      string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ClickHouseDSN          string
	ClickHouseMaxOpenConns int
	ClickHouseMaxIdleConns int
	ClickHouseConnMaxLife  time.Duration
	ClickHouseUsername     string
	ClickHousePassword     string
	ClickHouseDatabase     string
	ClickHouseAutoMigrate  bool

	NATSEnabled     bool
	NATSURL         string
	NATSConnTimeout time.Duration

	HTTPAddr      string
	TaskRetention time.Duration

	ServiceName      string
	OTELCollectorURL string
	LogLevel         string
	LogDevelopment   bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HH_API_BASE_URL", "https://api.hh.ru")
	v.SetDefault("HH_API_TIMEOUT", 10*time.Second)
	v.SetDefault("HH_USER_AGENT", "hh-research/1.0")
	v.SetDefault("SEARCH_MAX_PAGES", 40)
	v.SetDefault("ITEM_TIMEOUT", 15*time.Second)

	v.SetDefault("RATES_API_BASE_URL", "https://api.exchangerate-api.com/v4")
	v.SetDefault("RATES_BASE_CURRENCY", models.BaseCurrency)
	v.SetDefault("RATES_TIMEOUT", 10*time.Second)

	v.SetDefault("DEFAULT_AREA", "1")
	v.SetDefault("DEFAULT_PER_PAGE", 50)
	v.SetDefault("DEFAULT_MAX_WORKERS", 7)
	v.SetDefault("DEFAULT_REFRESH", false)
	v.SetDefault("CURRENCIES", "RUR,USD,EUR,UAH,KZT")

	v.SetDefault("TOP_N", 12)
	v.SetDefault("PREDICT", false)
	v.SetDefault("PREDICT_MIN_DF", 5)
	v.SetDefault("PREDICT_ALPHA", 1.0)

	v.SetDefault("CACHE_BACKEND", string(cache.BackendFile))
	v.SetDefault("CACHE_DIR", ".cache/listings")
	v.SetDefault("CACHE_TTL", time.Duration(0))
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CLICKHOUSE_DSN", "localhost:9000")
	v.SetDefault("CLICKHOUSE_MAX_OPEN_CONNS", 10)
	v.SetDefault("CLICKHOUSE_MAX_IDLE_CONNS", 5)
	v.SetDefault("CLICKHOUSE_CONN_MAX_LIFE", time.Hour)
	v.SetDefault("CLICKHOUSE_USERNAME", "default")
	v.SetDefault("CLICKHOUSE_PASSWORD", "")
	v.SetDefault("CLICKHOUSE_DATABASE", "hhresearch")
	v.SetDefault("CLICKHOUSE_AUTO_MIGRATE", true)

	v.SetDefault("NATS_ENABLED", false)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NATS_CONN_TIMEOUT", 10*time.Second)

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TASK_RETENTION", time.Hour)

	v.SetDefault("SERVICE_NAME", "hh-research")
	v.SetDefault("OTEL_COLLECTOR_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
}

// LoadConfig reads an optional .env file, then the environment, then an
// optional CONFIG_FILE. Environment variables take precedence over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	config := &Config{
		HHAPIBaseURL:   strings.TrimRight(v.GetString("HH_API_BASE_URL"), "/"),
		HHAPITimeout:   v.GetDuration("HH_API_TIMEOUT"),
		HHUserAgent:    v.GetString("HH_USER_AGENT"),
		SearchMaxPages: v.GetInt("SEARCH_MAX_PAGES"),
		ItemTimeout:    v.GetDuration("ITEM_TIMEOUT"),

		RatesAPIBaseURL:   strings.TrimRight(v.GetString("RATES_API_BASE_URL"), "/"),
		RatesBaseCurrency: models.CanonicalCurrency(v.GetString("RATES_BASE_CURRENCY")),
		RatesTimeout:      v.GetDuration("RATES_TIMEOUT"),

		DefaultArea:       v.GetString("DEFAULT_AREA"),
		DefaultPerPage:    v.GetInt("DEFAULT_PER_PAGE"),
		DefaultMaxWorkers: v.GetInt("DEFAULT_MAX_WORKERS"),
		DefaultRefresh:    v.GetBool("DEFAULT_REFRESH"),
		Currencies:        splitList(v.GetString("CURRENCIES")),

		TopN:         v.GetInt("TOP_N"),
		Predict:      v.GetBool("PREDICT"),
		PredictMinDF: v.GetInt("PREDICT_MIN_DF"),
		PredictAlpha: v.GetFloat64("PREDICT_ALPHA"),

		CacheBackend:  cache.Backend(strings.ToLower(v.GetString("CACHE_BACKEND"))),
		CacheDir:      v.GetString("CACHE_DIR"),
		CacheTTL:      v.GetDuration("CACHE_TTL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		ClickHouseDSN:          v.GetString("CLICKHOUSE_DSN"),
		ClickHouseMaxOpenConns: v.GetInt("CLICKHOUSE_MAX_OPEN_CONNS"),
		ClickHouseMaxIdleConns: v.GetInt("CLICKHOUSE_MAX_IDLE_CONNS"),
		ClickHouseConnMaxLife:  v.GetDuration("CLICKHOUSE_CONN_MAX_LIFE"),
		ClickHouseUsername:     v.GetString("CLICKHOUSE_USERNAME"),
		ClickHousePassword:     v.GetString("CLICKHOUSE_PASSWORD"),
		ClickHouseDatabase:     v.GetString("CLICKHOUSE_DATABASE"),
		ClickHouseAutoMigrate:  v.GetBool("CLICKHOUSE_AUTO_MIGRATE"),

		NATSEnabled:     v.GetBool("NATS_ENABLED"),
		NATSURL:         v.GetString("NATS_URL"),
		NATSConnTimeout: v.GetDuration("NATS_CONN_TIMEOUT"),

		HTTPAddr:      v.GetString("HTTP_ADDR"),
		TaskRetention: v.GetDuration("TASK_RETENTION"),

		ServiceName:      v.GetString("SERVICE_NAME"),
		OTELCollectorURL: v.GetString("OTEL_COLLECTOR_URL"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogDevelopment:   v.GetBool("LOG_DEVELOPMENT"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.HHAPIBaseURL == "" {
		problems = append(problems, "HH_API_BASE_URL is empty")
	}
	if c.RatesAPIBaseURL == "" {
		problems = append(problems, "RATES_API_BASE_URL is empty")
	}
	if c.SearchMaxPages < 1 {
		problems = append(problems, "SEARCH_MAX_PAGES must be positive")
	}
	if c.DefaultMaxWorkers < 1 || c.DefaultMaxWorkers > models.MaxWorkers {
		problems = append(problems, fmt.Sprintf("DEFAULT_MAX_WORKERS must be within 1..%d", models.MaxWorkers))
	}
	if c.DefaultPerPage < 1 || c.DefaultPerPage > 100 {
		problems = append(problems, "DEFAULT_PER_PAGE must be within 1..100")
	}
	if len(c.Currencies) == 0 {
		problems = append(problems, "CURRENCIES is empty")
	}
	if c.TopN < 1 {
		problems = append(problems, "TOP_N must be positive")
	}
	if c.PredictMinDF < 1 {
		problems = append(problems, "PREDICT_MIN_DF must be positive")
	}
	if c.PredictAlpha <= 0 {
		problems = append(problems, "PREDICT_ALPHA must be positive")
	}
	switch c.CacheBackend {
	case cache.BackendFile:
		if c.CacheDir == "" {
			problems = append(problems, "CACHE_DIR is empty")
		}
	case cache.BackendRedis, cache.BackendClickHouse:
	default:
		problems = append(problems, fmt.Sprintf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DefaultSettings returns the run settings used when a caller overrides nothing.
func (c *Config) DefaultSettings() models.Settings {
	return models.Settings{
		Area:       c.DefaultArea,
		PerPage:    c.DefaultPerPage,
		Refresh:    c.DefaultRefresh,
		MaxWorkers: c.DefaultMaxWorkers,
		Currencies: append([]string(nil), c.Currencies...),
		Predict:    c.Predict,
	}
}

func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend:       c.CacheBackend,
		DefaultTTL:    c.CacheTTL,
		Dir:           c.CacheDir,
		RedisURL:      c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

func (c *Config) DatabaseOptions() database.Options {
	return database.Options{
		DSN:             c.ClickHouseDSN,
		MaxOpenConns:    c.ClickHouseMaxOpenConns,
		MaxIdleConns:    c.ClickHouseMaxIdleConns,
		ConnMaxLifetime: c.ClickHouseConnMaxLife,
		Username:        c.ClickHouseUsername,
		Password:        c.ClickHousePassword,
		Database:        c.ClickHouseDatabase,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
