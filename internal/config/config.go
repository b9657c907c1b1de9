// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	APIBaseURL      string
	FrontendURL     string
	DBPath          string
	LogLevel        slog.Level
	LogFile         string
	RefreshInterval time.Duration
	SessionPoll     time.Duration
	FlashDuration   time.Duration
	RequestTimeout  time.Duration
	UpstreamRPS     float64
	Realtime        RealtimeConfig
}

// RealtimeConfig controls the upstream push channel.
type RealtimeConfig struct {
	Path       string
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	apiURL := getEnv("API_URL", "")
	if apiURL == "" {
		// Name used by the browser build; kept so one .env serves both.
		apiURL = getEnv("REACT_APP_API_URL", "http://localhost:4000")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8090"),
		APIBaseURL:      strings.TrimRight(apiURL, "/"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/console.db"),
		LogLevel:        getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LogFile:         getEnv("LOG_FILE", "./data/console.log"),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 10*time.Second),
		SessionPoll:     getEnvDuration("SESSION_POLL_INTERVAL", 5*time.Second),
		FlashDuration:   getEnvDuration("FLASH_DURATION", 1400*time.Millisecond),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		UpstreamRPS:     getEnvFloat("UPSTREAM_RPS", 10),
		Realtime: RealtimeConfig{
			Path:       getEnv("REALTIME_PATH", "/ws"),
			BackoffMin: getEnvDuration("REALTIME_BACKOFF_MIN", 500*time.Millisecond),
			BackoffMax: getEnvDuration("REALTIME_BACKOFF_MAX", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_URL scheme must be http or https, got %q", u.Scheme)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be > 0")
	}
	if c.SessionPoll <= 0 {
		return fmt.Errorf("SESSION_POLL_INTERVAL must be > 0")
	}
	if c.FlashDuration <= 0 {
		return fmt.Errorf("FLASH_DURATION must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.UpstreamRPS <= 0 {
		return fmt.Errorf("UPSTREAM_RPS must be > 0")
	}
	if c.Realtime.BackoffMin <= 0 || c.Realtime.BackoffMax < c.Realtime.BackoffMin {
		return fmt.Errorf("REALTIME_BACKOFF_MIN must be > 0 and <= REALTIME_BACKOFF_MAX")
	}
	if !strings.HasPrefix(c.Realtime.Path, "/") {
		return fmt.Errorf("REALTIME_PATH must start with /")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// RealtimeURL returns the websocket URL of the upstream push channel.
func (c *Config) RealtimeURL() string {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.Realtime.Path
	return u.String()
}

// AllowedOrigins returns the origins the console server accepts.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("10s") and bare milliseconds ("1400").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
