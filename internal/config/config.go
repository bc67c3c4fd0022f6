// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Session TTL bounds. A pending authorization lives long enough for a consent screen, no longer.
const (
	MinSessionTTL = 5 * time.Minute
	MaxSessionTTL = 10 * time.Minute
)

// Provider names accepted by DEFAULT_PROVIDER (OIDC uses OIDC_NAME).
const (
	ProviderTwitter       = "twitter"
	ProviderTwitterLegacy = "twitter-legacy"
)

// Transports accepted by AUTH_TRANSPORT.
var Transports = []string{"popup", "redirect", "direct"}

// Config holds all env configuration vars for tether.
type Config struct {
	Port     string
	LogLevel slog.Level

	// RedisURL is optional; empty means the in-memory pending store (single instance only).
	RedisURL string
	// DatabaseURL is optional; empty disables the audit trail.
	DatabaseURL string

	// FrontendOrigin is the only origin results are posted or redirected to, e.g. https://app.example.
	// /auth/* must be served from this same origin (reverse proxy): the popup's postMessage arrives
	// with event.origin set to the callback's origin, and the binding cookie is only sent first-party.
	FrontendOrigin string

	DefaultProvider  string
	DefaultTransport string

	// SessionTTL must be within MinSessionTTL..MaxSessionTTL. Default 10m.
	SessionTTL time.Duration
	// ResultTTL bounds how long a redirect-transport result waits to be read. Default 2m.
	ResultTTL time.Duration
	// SweepInterval is how often the in-memory store drops expired entries. Default 1m.
	SweepInterval time.Duration
	// ProviderTimeout bounds every outbound provider call. Default 5s.
	ProviderTimeout time.Duration

	// Per-IP limits on flow starts and direct completions. Defaults: 20/min, burst 5.
	RateStartPerMinute int
	RateStartBurst     int

	Twitter       TwitterConfig
	TwitterLegacy TwitterLegacyConfig
	OIDC          OIDCConfig
}

// TwitterConfig is the OAuth 2.0 app registration. Empty ClientID disables it.
type TwitterConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	AuthURL       string
	TokenURL      string
	ProfileURL    string
	ProfileDomain string
}

func (c TwitterConfig) Enabled() bool { return c.ClientID != "" }

// TwitterLegacyConfig is the OAuth 1.0a consumer key pair. Empty APIKey disables it.
type TwitterLegacyConfig struct {
	APIKey      string
	APISecret   string
	CallbackURL string
	BaseURL     string
}

func (c TwitterLegacyConfig) Enabled() bool { return c.APIKey != "" }

// OIDCConfig is a generic OpenID Connect client. Empty Issuer disables it.
type OIDCConfig struct {
	Name          string
	Issuer        string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	ProfileDomain string
}

func (c OIDCConfig) Enabled() bool { return c.Issuer != "" }

// ProviderNames lists the configured providers in a stable order.
func (c *Config) ProviderNames() []string {
	var names []string
	if c.Twitter.Enabled() {
		names = append(names, ProviderTwitter)
	}
	if c.TwitterLegacy.Enabled() {
		names = append(names, ProviderTwitterLegacy)
	}
	if c.OIDC.Enabled() {
		names = append(names, c.OIDC.Name)
	}
	return names
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if FRONTEND_ORIGIN is missing, no provider is configured,
// or a configured provider is incomplete.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "7865"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	origin, err := parseOrigin(os.Getenv("FRONTEND_ORIGIN"))
	if err != nil {
		return nil, fmt.Errorf("FRONTEND_ORIGIN: %w", err)
	}
	cfg.FrontendOrigin = origin

	cfg.SessionTTL = envDuration("AUTH_SESSION_TTL", MaxSessionTTL)
	if cfg.SessionTTL < MinSessionTTL || cfg.SessionTTL > MaxSessionTTL {
		return nil, fmt.Errorf("AUTH_SESSION_TTL must be between %s and %s, got %s", MinSessionTTL, MaxSessionTTL, cfg.SessionTTL)
	}
	cfg.ResultTTL = envDuration("AUTH_RESULT_TTL", 2*time.Minute)
	cfg.SweepInterval = envDuration("AUTH_SWEEP_INTERVAL", time.Minute)
	cfg.ProviderTimeout = envDuration("PROVIDER_TIMEOUT", 5*time.Second)

	cfg.RateStartPerMinute = envInt("RATE_START_PER_MINUTE", 20)
	cfg.RateStartBurst = envInt("RATE_START_BURST", 5)

	cfg.Twitter = TwitterConfig{
		ClientID:      os.Getenv("TWITTER_CLIENT_ID"),
		ClientSecret:  os.Getenv("TWITTER_CLIENT_SECRET"),
		RedirectURL:   os.Getenv("TWITTER_REDIRECT_URL"),
		Scopes:        envList("TWITTER_SCOPES", []string{"tweet.read", "users.read"}),
		AuthURL:       os.Getenv("TWITTER_AUTH_URL"),
		TokenURL:      os.Getenv("TWITTER_TOKEN_URL"),
		ProfileURL:    os.Getenv("TWITTER_PROFILE_URL"),
		ProfileDomain: envString("TWITTER_PROFILE_DOMAIN", "twitter.com"),
	}
	cfg.TwitterLegacy = TwitterLegacyConfig{
		APIKey:      os.Getenv("TWITTER_API_KEY"),
		APISecret:   os.Getenv("TWITTER_API_SECRET"),
		CallbackURL: os.Getenv("TWITTER_LEGACY_CALLBACK_URL"),
		BaseURL:     os.Getenv("TWITTER_LEGACY_BASE_URL"),
	}
	cfg.OIDC = OIDCConfig{
		Name:          envString("OIDC_NAME", "oidc"),
		Issuer:        os.Getenv("OIDC_ISSUER"),
		ClientID:      os.Getenv("OIDC_CLIENT_ID"),
		ClientSecret:  os.Getenv("OIDC_CLIENT_SECRET"),
		RedirectURL:   os.Getenv("OIDC_REDIRECT_URL"),
		ProfileDomain: os.Getenv("OIDC_PROFILE_DOMAIN"),
	}

	if err := cfg.validateProviders(); err != nil {
		return nil, err
	}

	cfg.DefaultProvider = envString("DEFAULT_PROVIDER", ProviderTwitter)
	if !slices.Contains(cfg.ProviderNames(), cfg.DefaultProvider) {
		return nil, fmt.Errorf("DEFAULT_PROVIDER %q is not configured (have %v)", cfg.DefaultProvider, cfg.ProviderNames())
	}

	cfg.DefaultTransport = envString("AUTH_TRANSPORT", "popup")
	if !slices.Contains(Transports, cfg.DefaultTransport) {
		return nil, fmt.Errorf("AUTH_TRANSPORT must be one of %v, got %q", Transports, cfg.DefaultTransport)
	}

	return cfg, nil
}

// validateProviders checks each enabled provider is complete and at least one is enabled.
func (c *Config) validateProviders() error {
	if c.Twitter.Enabled() {
		if c.Twitter.ClientSecret == "" {
			return errors.New("TWITTER_CLIENT_SECRET is required when TWITTER_CLIENT_ID is set")
		}
		if err := requireURL("TWITTER_REDIRECT_URL", c.Twitter.RedirectURL); err != nil {
			return err
		}
	}
	if c.TwitterLegacy.Enabled() {
		if c.TwitterLegacy.APISecret == "" {
			return errors.New("TWITTER_API_SECRET is required when TWITTER_API_KEY is set")
		}
		if err := requireURL("TWITTER_LEGACY_CALLBACK_URL", c.TwitterLegacy.CallbackURL); err != nil {
			return err
		}
	}
	if c.OIDC.Enabled() {
		if c.OIDC.ClientID == "" {
			return errors.New("OIDC_CLIENT_ID is required when OIDC_ISSUER is set")
		}
		if err := requireURL("OIDC_REDIRECT_URL", c.OIDC.RedirectURL); err != nil {
			return err
		}
		if c.OIDC.Name == ProviderTwitter || c.OIDC.Name == ProviderTwitterLegacy {
			return fmt.Errorf("OIDC_NAME %q clashes with a built-in provider", c.OIDC.Name)
		}
	}
	if len(c.ProviderNames()) == 0 {
		return errors.New("no provider configured: set TWITTER_CLIENT_ID, TWITTER_API_KEY or OIDC_ISSUER")
	}
	return nil
}

// parseOrigin accepts scheme://host[:port] with an optional trailing slash and returns it without one.
func parseOrigin(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("must be an http(s) origin, got %q", raw)
	}
	if u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", fmt.Errorf("must be scheme://host[:port] only, got %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// requireURL errors unless v is an absolute http(s) URL.
func requireURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, v)
	}
	return nil
}

// envString reads an env var, returning def if missing.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envList reads a space- or comma-separated env var, returning def if missing or empty.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) == 0 {
		return def
	}
	return parts
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
