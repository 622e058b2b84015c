// Copyright (c) 2026 Divvy. All rights reserved.

// Command api is the entry point for the Divvy HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool) and run migrations.
//  4. Select the revocation backend (in-memory or Redis).
//  5. Build the token issuer, validator and auth service.
//  6. Start background janitors and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/divvyapp/divvy/internal/api"
	"github.com/divvyapp/divvy/internal/platform/config"
	"github.com/divvyapp/divvy/internal/platform/constants"
	"github.com/divvyapp/divvy/internal/platform/middleware"
	"github.com/divvyapp/divvy/internal/platform/migration"
	pgstore "github.com/divvyapp/divvy/internal/platform/postgres"
	redisstore "github.com/divvyapp/divvy/internal/platform/redis"
	"github.com/divvyapp/divvy/internal/platform/revocation"
	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/internal/users/account"
	"github.com/divvyapp/divvy/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("revocation_backend", cfg.RevocationBackend),
		slog.Bool("rsa_signing", cfg.UseRSA()),
	)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), constants.StartupTimeout)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, pgstore.Options{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.StoreTimeout * 2,
	}, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	if cfg.AutoMigrate {
		must(log, migration.RunUp(cfg.DatabaseURL, log), "run migrations")
	}

	healthChecks := []api.HealthCheck{{
		Name:  "postgres",
		Check: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
	}}

	// ── 4. Revocation Store ───────────────────────────────────────────────
	var revocations revocation.Store
	sweepers := map[string]auth.Sweeper{}

	switch cfg.RevocationBackend {
	case config.RevocationRedis:
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()

		revocations = revocation.NewRedisStore(rdb, time.Now)
		healthChecks = append(healthChecks, api.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) },
		})
	default:
		memoryStore := revocation.NewMemoryStore(time.Now)
		revocations = memoryStore
		sweepers["revocations"] = memoryStore
	}

	// ── 5. Auth Service ───────────────────────────────────────────────────
	var tokens *sec.TokenService
	if cfg.UseRSA() {
		tokens, err = sec.NewRSATokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, cfg.Issuer())
	} else {
		tokens, err = sec.NewHMACTokenService([]byte(cfg.JWTSecret), cfg.Issuer())
	}
	must(log, err, "initialize token service")

	hasher, err := sec.NewPasswordHasher(cfg.BcryptCost)
	must(log, err, "initialize password hasher")

	validator := auth.NewTokenValidator(tokens, revocations, cfg.StoreTimeout)

	authService := auth.NewService(
		auth.NewUserRepository(pool),
		auth.NewSessionRepository(pool),
		tokens,
		revocations,
		hasher,
		auth.Config{
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
			StoreTimeout:    cfg.StoreTimeout,
		},
	)

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst)
	globalLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	sweepers["login_limiter"] = loginLimiter
	sweepers["global_limiter"] = globalLimiter

	authHandler := auth.NewHandler(authService, validator, auth.HandlerOptions{
		LoginLimiter:  loginLimiter.Middleware(),
		SecureCookies: !cfg.IsDevelopment(),
	})

	accountHandler := account.NewHandler(account.NewService(account.NewRepository(pool), revocations, cfg.StoreTimeout), validator)

	// ── 6. Background Work ────────────────────────────────────────────────
	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	janitor := auth.NewJanitor(authService, sweepers, constants.JanitorInterval, log)
	go janitor.Run(backgroundCtx)

	// ── 7. HTTP Server ────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(healthChecks, log)

	server := api.NewServer(api.Options{
		Port:        cfg.ServerPort,
		CORS:        cfg,
		RateLimiter: globalLimiter,
	}, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Account:   accountHandler,
	})

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	stopBackground()

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	// Returning runs the deferred pool and redis Close calls.
	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		return
	}

	log.Info("server stopped cleanly")
}

// newLogger builds the process-wide JSON logger and installs it as the default.
func newLogger(level slog.Level) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName))
	slog.SetDefault(log)
	return log
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
