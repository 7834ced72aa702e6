// Package config reads runtime settings from the environment and an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
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

// Development-only secrets. Validate refuses them in production.
const (
	devJWTSecret     = "dev_secret"
	devReportsSecret = "dev_reports_secret"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Reports   ReportsConfig
	Assistant AssistantConfig
	Bootstrap BootstrapConfig
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

// RedisConfig is only dialled when Enabled is set.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig.Format is "json" or "console".
type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig tunes cached grade rollups and the dashboard. Caching also
// needs Redis.
type CacheConfig struct {
	Enabled      bool
	RollupTTL    time.Duration
	DashboardTTL time.Duration
}

type ReportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	// CSVDelimiter is the field separator of CSV exports.
	CSVDelimiter rune
}

// AssistantConfig selects the LLM provider behind /assistant.
type AssistantConfig struct {
	Enabled   bool
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxRounds int
	Timeout   time.Duration
}

// BootstrapConfig seeds the first administrator on an empty database.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

var defaults = map[string]interface{}{
	"ENV":        EnvDevelopment,
	"PORT":       8080,
	"API_PREFIX": "/api/v1",

	"DB_HOST":           "localhost",
	"DB_PORT":           5432,
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "gradebook",
	"DB_SSL_MODE":       "disable",
	"DB_MAX_OPEN_CONNS": 10,
	"DB_MAX_IDLE_CONNS": 5,

	"ENABLE_REDIS":   false,
	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":     devJWTSecret,
	"JWT_EXPIRATION": "24h",
	"JWT_ISSUER":     "gradebook-api",

	"ALLOWED_ORIGINS": "",
	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "json",

	"ENABLE_ROLLUP_CACHE": false,
	"ROLLUP_CACHE_TTL":    "10m",
	"DASHBOARD_CACHE_TTL": "1m",

	"REPORTS_STORAGE_DIR":        "./exports",
	"REPORTS_SIGNED_URL_SECRET":  devReportsSecret,
	"REPORTS_SIGNED_URL_TTL":     "24h",
	"REPORTS_CLEANUP_INTERVAL":   "1h",
	"REPORTS_WORKER_CONCURRENCY": 1,
	"REPORTS_WORKER_RETRIES":     3,
	"REPORTS_CSV_DELIMITER":      ",",

	"ENABLE_ASSISTANT":     false,
	"ASSISTANT_PROVIDER":   "openai",
	"ASSISTANT_BASE_URL":   "",
	"ASSISTANT_API_KEY":    "",
	"ASSISTANT_MODEL":      "gpt-4o-mini",
	"ASSISTANT_MAX_ROUNDS": 5,
	"ASSISTANT_TIMEOUT":    "60s",

	"BOOTSTRAP_ADMIN_EMAIL":    "",
	"BOOTSTRAP_ADMIN_PASSWORD": "",
}

// Load merges defaults, .env and the process environment, in that order of
// increasing precedence, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	r := reader{v}
	cfg := &Config{
		Env:       strings.ToLower(v.GetString("ENV")),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSL_MODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("ENABLE_REDIS"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Expiration: r.duration("JWT_EXPIRATION", 24*time.Hour),
			Issuer:     v.GetString("JWT_ISSUER"),
		},
		CORS: CORSConfig{AllowedOrigins: r.list("ALLOWED_ORIGINS")},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Cache: CacheConfig{
			Enabled:      v.GetBool("ENABLE_ROLLUP_CACHE"),
			RollupTTL:    r.duration("ROLLUP_CACHE_TTL", 10*time.Minute),
			DashboardTTL: r.duration("DASHBOARD_CACHE_TTL", time.Minute),
		},
		Reports: ReportsConfig{
			StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
			SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
			SignedURLTTL:      r.duration("REPORTS_SIGNED_URL_TTL", 24*time.Hour),
			CleanupInterval:   r.duration("REPORTS_CLEANUP_INTERVAL", time.Hour),
			WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
			WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
			CSVDelimiter:      r.char("REPORTS_CSV_DELIMITER", ','),
		},
		Assistant: AssistantConfig{
			Enabled:   v.GetBool("ENABLE_ASSISTANT"),
			Provider:  strings.ToLower(v.GetString("ASSISTANT_PROVIDER")),
			BaseURL:   v.GetString("ASSISTANT_BASE_URL"),
			APIKey:    v.GetString("ASSISTANT_API_KEY"),
			Model:     v.GetString("ASSISTANT_MODEL"),
			MaxRounds: v.GetInt("ASSISTANT_MAX_ROUNDS"),
			Timeout:   r.duration("ASSISTANT_TIMEOUT", time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
			AdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with. Production also
// refuses the built-in development secrets.
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "JWT_SECRET is empty")
	}
	if c.Reports.SignedURLSecret == "" {
		problems = append(problems, "REPORTS_SIGNED_URL_SECRET is empty")
	}
	if c.Assistant.Enabled && c.Assistant.MaxRounds <= 0 {
		problems = append(problems, "ASSISTANT_MAX_ROUNDS must be positive")
	}
	if c.Env == EnvProduction {
		if c.JWT.Secret == devJWTSecret {
			problems = append(problems, "JWT_SECRET still has its development value")
		}
		if c.Reports.SignedURLSecret == devReportsSecret {
			problems = append(problems, "REPORTS_SIGNED_URL_SECRET still has its development value")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

type reader struct {
	v *viper.Viper
}

// duration parses a Go duration string, using fallback when the value is
// empty or malformed.
func (r reader) duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(r.v.GetString(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// char returns the single character held by key, or fallback.
func (r reader) char(key string, fallback rune) rune {
	runes := []rune(r.v.GetString(key))
	if len(runes) != 1 {
		return fallback
	}
	return runes[0]
}

// list splits a comma-separated value, dropping blanks.
func (r reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.v.GetString(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
