package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.LiveModel != "models/gemini-2.0-flash-live-001" {
		t.Fatalf("LiveModel=%q", cfg.LiveModel)
	}
	if cfg.SummaryModel != "gemini-2.0-flash" {
		t.Fatalf("SummaryModel=%q", cfg.SummaryModel)
	}
	if cfg.SummaryMaxRetries != 3 {
		t.Fatalf("SummaryMaxRetries=%d", cfg.SummaryMaxRetries)
	}
	if cfg.SummaryRetryBase != 15*time.Second {
		t.Fatalf("SummaryRetryBase=%s", cfg.SummaryRetryBase)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_CORSOrigins(t *testing.T) {
	t.Setenv("RURALMED_CORS_ORIGINS", "http://localhost:3000, https://clinic.example")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if _, ok := cfg.CORSAllowedOrigins["http://localhost:3000"]; !ok {
		t.Fatalf("missing localhost origin: %v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://clinic.example"]; !ok {
		t.Fatalf("missing clinic origin: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_DurationAcceptsMillisecondsAndGoSyntax(t *testing.T) {
	t.Setenv("RURALMED_LIVE_WS_WRITE_TIMEOUT", "2500")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.LiveWSWriteTimeout != 2500*time.Millisecond {
		t.Fatalf("LiveWSWriteTimeout=%s", cfg.LiveWSWriteTimeout)
	}

	t.Setenv("RURALMED_LIVE_WS_WRITE_TIMEOUT", "3s")
	cfg, err = LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.LiveWSWriteTimeout != 3*time.Second {
		t.Fatalf("LiveWSWriteTimeout=%s", cfg.LiveWSWriteTimeout)
	}
}

func TestLoadFromEnv_RejectsZeroRetryBase(t *testing.T) {
	t.Setenv("RURALMED_SUMMARY_RETRY_BASE", "0")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for zero retry base")
	}
}
