package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/intellisearch/synthesizer/internal/config"
	"github.com/intellisearch/synthesizer/internal/db"
	"github.com/intellisearch/synthesizer/internal/generator"
	"github.com/intellisearch/synthesizer/internal/health"
	"github.com/intellisearch/synthesizer/internal/httpapi"
	"github.com/intellisearch/synthesizer/internal/profiles"
	"github.com/intellisearch/synthesizer/internal/session"
	"github.com/intellisearch/synthesizer/internal/streaming"
	"github.com/intellisearch/synthesizer/internal/synthesis"
	"github.com/intellisearch/synthesizer/internal/tracing"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without it", zap.Error(err))
	}

	// Report profiles: built-ins plus optional file overrides with hot reload.
	registry := profiles.NewRegistry()
	var profileMgr *profiles.Manager
	if cfg.Profiles.Path != "" {
		if err := registry.LoadFile(cfg.Profiles.Path); err != nil {
			logger.Warn("Failed to load profiles file, using built-ins",
				zap.String("path", cfg.Profiles.Path),
				zap.Error(err),
			)
		}
		if cfg.Profiles.HotReload {
			profileMgr, err = profiles.NewManager(registry, cfg.Profiles.Path, logger)
			if err != nil {
				logger.Warn("Profile hot reload unavailable", zap.Error(err))
			} else if err := profileMgr.Start(ctx); err != nil {
				logger.Warn("Profile hot reload failed to start", zap.Error(err))
			} else {
				defer profileMgr.Stop()
			}
		}
	}

	sessions, err := session.NewManager(cfg.Redis.Addr, logger)
	if err != nil {
		logger.Fatal("Failed to connect session store", zap.Error(err))
	}
	defer sessions.Close()

	var store *db.Store
	if cfg.Synthesis.ArchiveReports {
		store, err = db.NewStore(&cfg.Database, logger)
		if err != nil {
			logger.Warn("Report archive unavailable, continuing without it", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	genClient := generator.NewClient(cfg.Generator, logger)
	engine := synthesis.NewEngine(genClient, logger,
		synthesis.WithConcurrency(cfg.Synthesis.SectionConcurrency),
	)

	if capStr := os.Getenv("STREAMING_RING_CAPACITY"); capStr != "" {
		if n, err := strconv.Atoi(capStr); err == nil && n > 0 {
			streaming.Configure(n)
		}
	}
	stream := streaming.Get()

	// Health checks: Redis is critical, the archive and generation service
	// only degrade.
	hm := health.NewManager(logger)
	hm.Register(health.NewPingChecker("redis", sessions, true))
	if store != nil {
		hm.Register(health.NewPingChecker("archive", store, false))
	}
	if cfg.Generator.BaseURL != "" {
		hm.Register(health.NewHTTPChecker("generator", cfg.Generator.BaseURL+"/health", false))
	}

	mux := http.NewServeMux()
	hm.RegisterRoutes(mux)

	research := httpapi.NewResearchHandler(engine, sessions, registry, store, stream, logger)
	streamHandler := httpapi.NewStreamingHandler(stream, logger)

	if cfg.Auth.Enabled {
		authMW := httpapi.NewAuthMiddleware(cfg.Auth.JWTSecret, logger)
		apiMux := http.NewServeMux()
		research.RegisterRoutes(apiMux)
		streamHandler.RegisterRoutes(apiMux)
		mux.Handle("/api/", authMW.Middleware(apiMux))
		mux.Handle("/stream/", authMW.Middleware(apiMux))
	} else {
		research.RegisterRoutes(mux)
		streamHandler.RegisterRoutes(mux)
	}

	// Metrics on a separate listener, as scrape targets should not share
	// the public API port.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("Synthesizer API listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Periodic session cleanup.
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if _, err := sessions.CleanupExpired(cleanupCtx); err != nil {
					logger.Warn("Session cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown incomplete", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
