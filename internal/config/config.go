// Package config provides application configuration loaded from the environment,
// an optional config file and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "postgres" (default) or "sqlite"; Path is the sqlite DSN.
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Debug    bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
	Seed       bool
	Timezone   string
	LogLevel   string
	// LockTimeout bounds how long a cashbox close waits for the row lock.
	LockTimeout time.Duration
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Location resolves the configured timezone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from .env, config.toml (if present) and environment variables.
// Precedence: env var > config file > default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
			IdleTimeout:  v.GetInt("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("db.driver"),
			Path:     v.GetString("db.path"),
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			DBName:   v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
			Debug:    v.GetBool("db.debug"),
		},
		App: AppConfig{
			Dev:         v.GetBool("dev"),
			Migrations:  v.GetBool("migrations"),
			Seed:        v.GetBool("db.seed"),
			Timezone:    v.GetString("tz"),
			LogLevel:    v.GetString("log.level"),
			LockTimeout: v.GetDuration("lock.timeout"),
		},
	}, nil
}

// setDefaults registers the development defaults. Keys map to env vars by
// replacing dots with underscores (db.host -> DB_HOST).
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.idle_timeout", 60)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.path", "workshop.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "workshop")
	v.SetDefault("db.password", "workshop123")
	v.SetDefault("db.name", "workshop")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.debug", false)
	v.SetDefault("db.seed", true)

	v.SetDefault("dev", true)
	v.SetDefault("migrations", false)
	v.SetDefault("tz", "UTC")
	v.SetDefault("log.level", "info")
	v.SetDefault("lock.timeout", "5s")
}
