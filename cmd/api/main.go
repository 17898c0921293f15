package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-registry/config"
	httpHandler "wallet-registry/internal/adapter/http/handler"
	"wallet-registry/internal/adapter/http/middleware"
	memStorage "wallet-registry/internal/adapter/storage/memory"
	pgStorage "wallet-registry/internal/adapter/storage/postgres"
	redisStorage "wallet-registry/internal/adapter/storage/redis"
	"wallet-registry/internal/core/ports"
	"wallet-registry/internal/service"
	"wallet-registry/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const metricsNamespace = "wallet_registry"

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("WR_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Wallet Registry")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Primary store
	store, auditRepo, storeHealth, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	// Redis: search index, rate limits, idempotency
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	index := redisStorage.NewWalletIndex(rdb, cfg.Search.KeyPrefix)

	// Services
	reindexer := service.NewReindexer(store, index, log)
	auditSvc := service.NewAuditService(auditRepo, log)
	walletSvc := service.NewWalletService(store, index, reindexer, auditSvc, log)

	if cfg.Search.ReindexOnStart {
		n, err := reindexer.ReindexAll(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Startup reindex failed")
		} else {
			log.Info().Int("indexed", n).Msg("Search index rebuilt")
		}
	}
	go reindexer.Run(ctx, cfg.Search.ReconcileInterval)

	metrics := middleware.NewMetrics(metricsNamespace)
	metrics.RegisterGauge(metricsNamespace, "index_stale_wallets",
		"Wallets whose search index entry awaits reconciliation.",
		func() float64 { return float64(len(reindexer.Pending())) })

	deps := httpHandler.RouterDeps{
		WalletSvc:        walletSvc,
		Maintainer:       reindexer,
		IdempotencyCache: redisStorage.NewIdempotencyCache(rdb),
		IdempotencyTTL:   cfg.Idempotency.TTL,
		Metrics:          metrics,
		HealthCheckers:   []ports.HealthChecker{storeHealth, redisStorage.NewHealthCheck(rdb)},
		BasePath:         cfg.Server.BasePath,
		AppName:          cfg.Server.AppName,
		Logger:           log,
	}
	if cfg.Security.JWTSecret != "" {
		deps.TokenSvc = service.NewJWTTokenService(cfg.Security.JWTSecret, cfg.Security.JWTExpiry, cfg.Security.JWTIssuer)
	} else {
		log.Warn().Msg("security.jwt_secret not set, wallet routes are public")
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimitStore = redisStorage.NewRateLimitStore(rdb)
		deps.RateLimitRules = middleware.WalletRateLimitRules(cfg.RateLimit.Read, cfg.RateLimit.Write, cfg.RateLimit.Search)
	}

	router := httpHandler.SetupRouter(deps)

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if pending := reindexer.Pending(); len(pending) > 0 {
		log.Warn().Ints64("ids", pending).Msg("Exiting with stale index entries")
	}
	log.Info().Msg("Server exited")
}

// openStore returns the configured primary store, the audit repository
// backing it (nil for memory) and its health checker.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.WalletStore, ports.AuditRepository, ports.HealthChecker, func()) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory store, wallets are lost on restart")
		store := memStorage.NewWalletStore()
		return store, nil, store, func() {}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	if cfg.Database.Migrate {
		if err := pgStorage.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}
	return pgStorage.NewWalletRepo(pool), pgStorage.NewAuditRepo(pool), pgStorage.NewHealthCheck(pool), pool.Close
}
