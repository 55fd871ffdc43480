// Package config loads runtime settings from configs/.env and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"salesflow/internal/throttle"
	"salesflow/internal/workflow"

	"github.com/joho/godotenv"
)

const devJWTSecret = "default_super_secret_key"

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the postgres connection URL
func (d DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether document storage is configured
func (m MinioConfig) Enabled() bool { return m.Endpoint != "" }

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (s SMTPConfig) Enabled() bool { return s.Host != "" }

type Config struct {
	Env         string
	Port        string
	LogLevel    string
	JWTSecret   string
	CORSOrigins []string

	DB    DBConfig
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Minio MinioConfig
	SMTP  SMTPConfig

	// public URL prefix for signing links, e.g. https://app.example.com/sign
	SigningBaseURL string

	WorkflowFetchPolicy workflow.FetchErrorPolicy
	WorkflowCacheTTL    time.Duration
	Login               throttle.Settings
}

// IsProduction reports whether the service runs with production defaults
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configs/.env when present, then the process environment
func Load() (Config, error) {
	_ = godotenv.Load("configs/.env")
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can inject values
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var errs []error
	intVal := func(key string, fallback int) int {
		raw := get(key, "")
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}
		return n
	}
	durationVal := func(key string, fallback time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}
		return d
	}

	cfg := Config{
		Env:       get("APP_ENV", "development"),
		Port:      get("PORT", "8080"),
		LogLevel:  get("LOG_LEVEL", ""),
		JWTSecret: get("JWT_SECRET", ""),
		DB: DBConfig{
			Host:     get("DB_HOST", "localhost"),
			Port:     get("DB_PORT", "5432"),
			User:     get("DB_USER", "postgres"),
			Password: get("DB_PASSWORD", "postgres"),
			Name:     get("DB_NAME", "postgres"),
			SSLMode:  get("DB_SSLMODE", "disable"),
		},
		Minio: MinioConfig{
			Endpoint:  get("MINIO_ENDPOINT", ""),
			AccessKey: get("MINIO_ACCESS_KEY", ""),
			SecretKey: get("MINIO_SECRET_KEY", ""),
			UseSSL:    get("MINIO_USE_SSL", "false") == "true",
			Bucket:    get("MINIO_BUCKET", "contracts"),
		},
		SMTP: SMTPConfig{
			Host:     get("SMTP_HOST", ""),
			Port:     intVal("SMTP_PORT", 587),
			User:     get("SMTP_USER", ""),
			Password: get("SMTP_PASSWORD", ""),
			From:     get("SMTP_FROM", "no-reply@salesflow.local"),
		},
		SigningBaseURL:   strings.TrimRight(get("SIGNING_BASE_URL", "http://localhost:5173/sign"), "/"),
		WorkflowCacheTTL: durationVal("WORKFLOW_CACHE_TTL", 5*time.Minute),
		Login: throttle.Settings{
			MaxAttempts: intVal("LOGIN_MAX_ATTEMPTS", 5),
			Window:      durationVal("LOGIN_WINDOW", 15*time.Minute),
			Lockout:     durationVal("LOGIN_LOCKOUT", 15*time.Minute),
		},
	}
	cfg.Redis.Addr = get("REDIS_ADDR", "")
	cfg.Redis.Password = get("REDIS_PASSWORD", "")
	cfg.Redis.DB = intVal("REDIS_DB", 0)

	for _, origin := range strings.Split(get("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	policy, err := workflow.ParseFetchErrorPolicy(get("WORKFLOW_ON_FETCH_ERROR", ""))
	if err != nil {
		errs = append(errs, fmt.Errorf("WORKFLOW_ON_FETCH_ERROR: %w", err))
	}
	cfg.WorkflowFetchPolicy = policy

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		cfg.JWTSecret = devJWTSecret
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
