package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// allKeys is every variable LoadConfig reads; cleared before each case so the host env can't leak in.
var allKeys = []string{
	"PORT", "LOG_LEVEL", "REDIS_URL", "DATABASE_URL", "FRONTEND_ORIGIN",
	"DEFAULT_PROVIDER", "AUTH_TRANSPORT", "AUTH_SESSION_TTL", "AUTH_RESULT_TTL",
	"AUTH_SWEEP_INTERVAL", "PROVIDER_TIMEOUT", "RATE_START_PER_MINUTE", "RATE_START_BURST",
	"TWITTER_CLIENT_ID", "TWITTER_CLIENT_SECRET", "TWITTER_REDIRECT_URL", "TWITTER_SCOPES",
	"TWITTER_AUTH_URL", "TWITTER_TOKEN_URL", "TWITTER_PROFILE_URL", "TWITTER_PROFILE_DOMAIN",
	"TWITTER_API_KEY", "TWITTER_API_SECRET", "TWITTER_LEGACY_CALLBACK_URL", "TWITTER_LEGACY_BASE_URL",
	"OIDC_NAME", "OIDC_ISSUER", "OIDC_CLIENT_ID", "OIDC_CLIENT_SECRET", "OIDC_REDIRECT_URL", "OIDC_PROFILE_DOMAIN",
}

// setRequired clears the env and sets the minimum for a valid config (Twitter OAuth 2.0 only).
func setRequired(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
	t.Setenv("FRONTEND_ORIGIN", "https://app.example")
	t.Setenv("TWITTER_CLIENT_ID", "cid")
	t.Setenv("TWITTER_CLIENT_SECRET", "csecret")
	t.Setenv("TWITTER_REDIRECT_URL", "https://api.example/auth/callback")
}

// --- LoadConfig ---

func TestLoadConfig(t *testing.T) {
	t.Run("returns defaults with only required vars", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "7865" {
			t.Errorf("Port: expected 7865, got %q", cfg.Port)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("LogLevel: expected info, got %v", cfg.LogLevel)
		}
		if cfg.DefaultProvider != "twitter" || cfg.DefaultTransport != "popup" {
			t.Errorf("defaults: got provider %q transport %q", cfg.DefaultProvider, cfg.DefaultTransport)
		}
		if cfg.SessionTTL != 10*time.Minute || cfg.ResultTTL != 2*time.Minute {
			t.Errorf("TTLs: got session %s result %s", cfg.SessionTTL, cfg.ResultTTL)
		}
		if cfg.ProviderTimeout != 5*time.Second || cfg.SweepInterval != time.Minute {
			t.Errorf("timeouts: got provider %s sweep %s", cfg.ProviderTimeout, cfg.SweepInterval)
		}
		if cfg.RateStartPerMinute != 20 || cfg.RateStartBurst != 5 {
			t.Errorf("rate: got %d/%d", cfg.RateStartPerMinute, cfg.RateStartBurst)
		}
		if diff := cmp.Diff([]string{"tweet.read", "users.read"}, cfg.Twitter.Scopes); diff != "" {
			t.Errorf("Scopes (-want +got):\n%s", diff)
		}
		if cfg.Twitter.ProfileDomain != "twitter.com" {
			t.Errorf("ProfileDomain: expected twitter.com, got %q", cfg.Twitter.ProfileDomain)
		}
		if cfg.RedisURL != "" || cfg.DatabaseURL != "" {
			t.Error("storage URLs should be optional and empty")
		}
	})

	t.Run("errors when FRONTEND_ORIGIN is missing", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FRONTEND_ORIGIN", "")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for missing FRONTEND_ORIGIN, got nil")
		}
	})

	t.Run("normalizes FRONTEND_ORIGIN trailing slash", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FRONTEND_ORIGIN", "http://localhost:3000/")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.FrontendOrigin != "http://localhost:3000" {
			t.Errorf("FrontendOrigin: expected http://localhost:3000, got %q", cfg.FrontendOrigin)
		}
	})

	t.Run("rejects FRONTEND_ORIGIN that is not an origin", func(t *testing.T) {
		for _, v := range []string{"*", "app.example", "https://app.example/path", "ftp://app.example", "https://app.example?x=1"} {
			setRequired(t)
			t.Setenv("FRONTEND_ORIGIN", v)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("FRONTEND_ORIGIN=%q: expected error, got nil", v)
			}
		}
	})

	t.Run("errors when no provider is configured", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TWITTER_CLIENT_ID", "")

		_, err := LoadConfig()
		if err == nil || !strings.Contains(err.Error(), "no provider") {
			t.Fatalf("expected no provider error, got %v", err)
		}
	})

	t.Run("errors when twitter secret is missing", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TWITTER_CLIENT_SECRET", "")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for missing TWITTER_CLIENT_SECRET, got nil")
		}
	})

	t.Run("errors when redirect url is relative", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TWITTER_REDIRECT_URL", "/auth/callback")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for relative TWITTER_REDIRECT_URL, got nil")
		}
	})

	t.Run("errors when default provider is not configured", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DEFAULT_PROVIDER", "twitter-legacy")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for unconfigured DEFAULT_PROVIDER, got nil")
		}
	})

	t.Run("errors on unknown transport", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTH_TRANSPORT", "carrier-pigeon")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for unknown AUTH_TRANSPORT, got nil")
		}
	})

	t.Run("session ttl outside 5m..10m is rejected", func(t *testing.T) {
		for _, v := range []string{"4m59s", "11m"} {
			setRequired(t)
			t.Setenv("AUTH_SESSION_TTL", v)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("AUTH_SESSION_TTL=%s: expected error, got nil", v)
			}
		}
	})

	t.Run("session ttl at lower bound is accepted", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTH_SESSION_TTL", "5m")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.SessionTTL != 5*time.Minute {
			t.Errorf("SessionTTL: expected 5m, got %s", cfg.SessionTTL)
		}
	})

	t.Run("all providers configured", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TWITTER_API_KEY", "ck")
		t.Setenv("TWITTER_API_SECRET", "cs")
		t.Setenv("TWITTER_LEGACY_CALLBACK_URL", "https://api.example/auth/callback")
		t.Setenv("OIDC_NAME", "acme")
		t.Setenv("OIDC_ISSUER", "https://id.acme.example")
		t.Setenv("OIDC_CLIENT_ID", "oc")
		t.Setenv("OIDC_REDIRECT_URL", "https://api.example/auth/callback")
		t.Setenv("DEFAULT_PROVIDER", "acme")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if diff := cmp.Diff([]string{"twitter", "twitter-legacy", "acme"}, cfg.ProviderNames()); diff != "" {
			t.Errorf("ProviderNames (-want +got):\n%s", diff)
		}
	})

	t.Run("oidc name may not shadow a built-in provider", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OIDC_NAME", "twitter")
		t.Setenv("OIDC_ISSUER", "https://id.acme.example")
		t.Setenv("OIDC_CLIENT_ID", "oc")
		t.Setenv("OIDC_REDIRECT_URL", "https://api.example/auth/callback")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for clashing OIDC_NAME, got nil")
		}
	})

	t.Run("scopes accept spaces and commas", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TWITTER_SCOPES", "users.read, offline.access")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if diff := cmp.Diff([]string{"users.read", "offline.access"}, cfg.Twitter.Scopes); diff != "" {
			t.Errorf("Scopes (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid numeric values fall back to defaults", func(t *testing.T) {
		setRequired(t)
		t.Setenv("RATE_START_PER_MINUTE", "lots")
		t.Setenv("PROVIDER_TIMEOUT", "-1s")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RateStartPerMinute != 20 {
			t.Errorf("RateStartPerMinute: expected 20, got %d", cfg.RateStartPerMinute)
		}
		if cfg.ProviderTimeout != 5*time.Second {
			t.Errorf("ProviderTimeout: expected 5s, got %s", cfg.ProviderTimeout)
		}
	})

	t.Run("parses LOG_LEVEL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LOG_LEVEL", "DEBUG")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Errorf("LogLevel: expected debug, got %v", cfg.LogLevel)
		}
	})
}
