// Package config загружает настройки сервиса из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Типы хранилищ.
const (
	StorageInMemory = "in-memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config - настройки сервиса.
type Config struct {
	Addr string `env:"YATUBE_ADDR" envDefault:":8080"`
	// Port оставлен для совместимости с PaaS, которые выставляют только PORT.
	Port string `env:"PORT"`

	Storage     string `env:"YATUBE_STORAGE" envDefault:"in-memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"YATUBE_SQLITE_PATH" envDefault:"yatube.db"`

	MediaRoot string `env:"YATUBE_MEDIA_ROOT" envDefault:"media"`

	SessionSecret string        `env:"YATUBE_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"YATUBE_SESSION_TTL" envDefault:"336h"`
	SecureCookies bool          `env:"YATUBE_SECURE_COOKIES" envDefault:"false"`

	IndexCacheTTL time.Duration `env:"YATUBE_INDEX_CACHE_TTL" envDefault:"20s"`

	LogLevel string `env:"YATUBE_LOG_LEVEL" envDefault:"info"`
}

// Load читает конфигурацию из окружения. Проверка (Validate) остается
// вызывающему, после того как он применит свои переопределения.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// ListenAddr возвращает адрес для http.Server с учетом PORT.
func (c *Config) ListenAddr() string {
	if c.Port != "" {
		return ":" + c.Port
	}
	return c.Addr
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageInMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for postgres storage")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("YATUBE_SQLITE_PATH must be set for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage %q (want %s, %s or %s)", c.Storage, StorageInMemory, StoragePostgres, StorageSQLite)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("YATUBE_SESSION_TTL must be positive")
	}
	if c.IndexCacheTTL < 0 {
		return fmt.Errorf("YATUBE_INDEX_CACHE_TTL must not be negative")
	}
	return nil
}

// SlogLevel переводит LogLevel в slog.Level; неизвестное значение - info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
