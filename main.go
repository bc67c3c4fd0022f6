package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/tether/internal/auth"
	"github.com/MGallo-Code/tether/internal/config"
	"github.com/MGallo-Code/tether/internal/metrics"
	"github.com/MGallo-Code/tether/internal/oauth"
	"github.com/MGallo-Code/tether/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Embeds the audit-log migrations into the binary.
//
//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred closes always run. Shuts down when ctx is cancelled.
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	// Audit log: Postgres when configured, otherwise a no-op.
	var al auth.AuditLog = store.NopAuditLog{}
	if cfg.DatabaseURL != "" {
		ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to set up postgres store: %w", err)
		}
		defer ps.Close()

		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			return fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		if err := ps.Migrate(ctx, migrationsFS); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		al = ps
	} else {
		slog.Warn("DATABASE_URL not set, audit log disabled")
	}

	// Background workers stop when run() returns.
	bgCtx, cancelBG := context.WithCancel(ctx)
	defer cancelBG()

	// Pending store: Redis when configured, otherwise in-process.
	var pending interface {
		auth.PendingStore
		auth.ResultStore
	}
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		pending = store.NewRedisStore(rdb)
	} else {
		slog.Warn("REDIS_URL not set, using in-memory session store (single instance only)")
		ms := store.NewMemoryStore()
		go ms.Run(bgCtx, cfg.SweepInterval)
		pending = ms
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := auth.AuthHandler{
		PS:               pending,
		RS:               pending,
		AL:               al,
		MR:               metrics.NewCollector(reg),
		Providers:        providers,
		DefaultProvider:  cfg.DefaultProvider,
		DefaultTransport: cfg.DefaultTransport,
		FrontendOrigin:   cfg.FrontendOrigin,
		SessionTTL:       cfg.SessionTTL,
		ResultTTL:        cfg.ResultTTL,
	}

	limiter := auth.NewIPRateLimiter(cfg.RateStartPerMinute, cfg.RateStartBurst)
	go limiter.Run(bgCtx, 5*time.Minute)

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(&h, limiter, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("tether listening", "addr", ln.Addr().String(), "providers", cfg.ProviderNames(), "transport", cfg.DefaultTransport)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildProviders constructs every configured provider, keyed by name.
// OIDC discovery makes a network call, so an unreachable issuer fails startup.
func buildProviders(ctx context.Context, cfg *config.Config) (map[string]oauth.Provider, error) {
	providers := make(map[string]oauth.Provider)

	if cfg.Twitter.Enabled() {
		providers[config.ProviderTwitter] = oauth.NewTwitterProvider(oauth.TwitterConfig{
			ClientID:      cfg.Twitter.ClientID,
			ClientSecret:  cfg.Twitter.ClientSecret,
			RedirectURL:   cfg.Twitter.RedirectURL,
			Scopes:        cfg.Twitter.Scopes,
			AuthURL:       cfg.Twitter.AuthURL,
			TokenURL:      cfg.Twitter.TokenURL,
			ProfileURL:    cfg.Twitter.ProfileURL,
			ProfileDomain: cfg.Twitter.ProfileDomain,
			Timeout:       cfg.ProviderTimeout,
		})
	}
	if cfg.TwitterLegacy.Enabled() {
		providers[config.ProviderTwitterLegacy] = oauth.NewTwitterLegacyProvider(oauth.TwitterLegacyConfig{
			ConsumerKey:    cfg.TwitterLegacy.APIKey,
			ConsumerSecret: cfg.TwitterLegacy.APISecret,
			CallbackURL:    cfg.TwitterLegacy.CallbackURL,
			BaseURL:        cfg.TwitterLegacy.BaseURL,
			ProfileDomain:  cfg.Twitter.ProfileDomain,
			Timeout:        cfg.ProviderTimeout,
		})
	}
	if cfg.OIDC.Enabled() {
		p, err := oauth.NewOIDCProvider(ctx, oauth.OIDCConfig{
			Name:          cfg.OIDC.Name,
			Issuer:        cfg.OIDC.Issuer,
			ClientID:      cfg.OIDC.ClientID,
			ClientSecret:  cfg.OIDC.ClientSecret,
			RedirectURL:   cfg.OIDC.RedirectURL,
			ProfileDomain: cfg.OIDC.ProfileDomain,
			Timeout:       cfg.ProviderTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up oidc provider: %w", err)
		}
		providers[p.Name()] = p
	}
	return providers, nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler, limiter *auth.IPRateLimiter, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)
	r.Handle("/metrics", metrics.Handler(gatherer))

	r.Route("/auth", func(r chi.Router) {
		r.Use(auth.CORS(h.FrontendOrigin))

		// Provider redirects land here; not rate limited so a slow user can't lose their flow.
		r.Get("/callback", h.Callback)
		r.Get("/result", h.Result)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/start", h.StartAuth)
			r.Get("/start", h.StartRedirect)
			r.Post("/complete", h.Complete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { auth.NotFound(w) })

	return r
}
