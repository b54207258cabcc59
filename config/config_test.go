package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.ServerPort != 8080 {
		t.Fatalf("expected default server port 8080, got %d", cfg.ServerPort)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("expected default token TTL 24h, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.RecaptchaURL == "" {
		t.Fatalf("expected default recaptcha verify URL")
	}
	if cfg.Auth.GoogleTimeout != 5*time.Second {
		t.Fatalf("expected default google timeout 5s, got %s", cfg.Auth.GoogleTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "18080")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_TTL", "30m")
	t.Setenv("RECAPTCHA_TIMEOUT", "2s")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_TIMEOUT", "3s")
	t.Setenv("MQ_PROVIDER", "rabbitmq")
	t.Setenv("STORAGE_PROVIDER", "minio")

	cfg := LoadConfig()
	if cfg.ServerPort != 18080 {
		t.Fatalf("expected SERVER_PORT override, got %d", cfg.ServerPort)
	}
	if !cfg.Database.UseSSL {
		t.Fatalf("expected DB_USE_SSL override")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Fatalf("expected JWT_SECRET override, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Fatalf("expected JWT_TTL 30m, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.RecaptchaTimeout != 2*time.Second {
		t.Fatalf("expected RECAPTCHA_TIMEOUT 2s, got %s", cfg.Auth.RecaptchaTimeout)
	}
	if cfg.Auth.GoogleClientID != "client-id" {
		t.Fatalf("expected GOOGLE_CLIENT_ID override")
	}
	if cfg.Auth.GoogleTimeout != 3*time.Second {
		t.Fatalf("expected GOOGLE_TIMEOUT 3s, got %s", cfg.Auth.GoogleTimeout)
	}
	if cfg.MQ.Provider != "rabbitmq" || cfg.Storage.Provider != "minio" {
		t.Fatalf("unexpected provider selection: mq=%q storage=%q", cfg.MQ.Provider, cfg.Storage.Provider)
	}
}
