package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trustplane/platform/internal/app"
	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/infra"
	"github.com/trustplane/platform/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load and validate config. Insecure secrets abort startup here.
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Migrate both stores before connecting the pools.
	if err := infra.RunMigrations(cfg.ZeroTrustDSN(), "zerotrust", logger); err != nil {
		return fmt.Errorf("migrate zero-trust store: %w", err)
	}
	if err := infra.RunMigrations(cfg.AuditDSN(), "audit", logger); err != nil {
		return fmt.Errorf("migrate audit store: %w", err)
	}

	zeroTrustPool, err := infra.NewPostgresPool(ctx, cfg.ZeroTrustDSN())
	if err != nil {
		return fmt.Errorf("connect zero-trust store: %w", err)
	}
	defer zeroTrustPool.Close()

	auditPool, err := infra.NewPostgresPool(ctx, cfg.AuditDSN())
	if err != nil {
		return fmt.Errorf("connect audit store: %w", err)
	}
	defer auditPool.Close()
	logger.Info("connected to postgres")

	// Redis is optional: without it every verification hits the store, which
	// is slower but never wrong.
	var cache *repository.SessionCache
	if redisClient, err := infra.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		logger.Warn("redis unavailable, session revocation cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		cache = repository.NewSessionCache(redisClient)
	}

	// Audit ledger with optional Kafka mirror.
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	var mirror audit.Mirror
	if producer.Enabled() {
		mirror = audit.NewKafkaMirror(producer, cfg.AuditMirrorTopic)
	}

	auditStore := repository.NewAuditStore(auditPool)
	ledger, err := audit.NewLedger(ctx, auditStore, []byte(cfg.AuditSigningKey), mirror, logger)
	if err != nil {
		return fmt.Errorf("open audit ledger: %w", err)
	}
	if _, err := ledger.LogEvent(ctx, audit.Event{
		Type:   domain.EventSystemStart,
		Actor:  "system",
		Action: "api server starting",
		Status: domain.StatusSuccess,
	}); err != nil {
		return fmt.Errorf("audit store not writable: %w", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)

	r := app.NewRouter(app.RouterDeps{
		ZeroTrustPool: zeroTrustPool,
		AuditPool:     auditPool,
		Ledger:        ledger,
		Cache:         cache,
		JWTMgr:        jwtMgr,
		Logger:        logger,
		Cfg:           cfg,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
