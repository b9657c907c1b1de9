package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_URL", "https://api.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.RefreshInterval != 10*time.Second {
		t.Errorf("expected 10s refresh, got %v", cfg.RefreshInterval)
	}
	if cfg.SessionPoll != 5*time.Second {
		t.Errorf("expected 5s session poll, got %v", cfg.SessionPoll)
	}
	if cfg.FlashDuration != 1400*time.Millisecond {
		t.Errorf("expected 1.4s flash, got %v", cfg.FlashDuration)
	}
	if got := cfg.RealtimeURL(); got != "wss://api.example.com/ws" {
		t.Errorf("unexpected realtime url %q", got)
	}
}

func TestLoadFallsBackToBrowserVariable(t *testing.T) {
	t.Setenv("API_URL", "")
	t.Setenv("REACT_APP_API_URL", "http://10.0.0.5:4000")
	t.Setenv("FLASH_DURATION", "900")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "http://10.0.0.5:4000" {
		t.Errorf("unexpected base url %q", cfg.APIBaseURL)
	}
	if cfg.FlashDuration != 900*time.Millisecond {
		t.Errorf("expected bare milliseconds to parse, got %v", cfg.FlashDuration)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
	if got := cfg.RealtimeURL(); got != "ws://10.0.0.5:4000/ws" {
		t.Errorf("unexpected realtime url %q", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("API_URL", "localhost:4000")
	if _, err := Load(); err == nil {
		t.Fatal("expected relative API_URL to be rejected")
	}

	t.Setenv("API_URL", "http://localhost:4000")
	t.Setenv("REALTIME_BACKOFF_MIN", "10s")
	t.Setenv("REALTIME_BACKOFF_MAX", "1s")
	if _, err := Load(); err == nil {
		t.Fatal("expected inverted backoff bounds to be rejected")
	}

	t.Setenv("REALTIME_BACKOFF_MIN", "1s")
	t.Setenv("SESSION_POLL_INTERVAL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected zero session poll interval to be rejected")
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{FrontendURL: "https://console.example.com"}
	if cfg.IsDevelopment() {
		t.Fatal("expected production mode")
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 1 || origins[0] != "https://console.example.com" {
		t.Errorf("unexpected origins %v", origins)
	}

	dev := &Config{}
	if got := dev.AllowedOrigins(); got[0] != "*" {
		t.Errorf("expected wildcard in development, got %v", got)
	}
}
