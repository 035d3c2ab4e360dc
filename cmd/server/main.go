package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/factlens/factlens/internal/auth"
	"github.com/factlens/factlens/internal/cache"
	"github.com/factlens/factlens/internal/config"
	"github.com/factlens/factlens/internal/db"
	"github.com/factlens/factlens/internal/health"
	"github.com/factlens/factlens/internal/httpapi"
	"github.com/factlens/factlens/internal/pipeline"
	"github.com/factlens/factlens/internal/provider"
	"github.com/factlens/factlens/internal/report"
	"github.com/factlens/factlens/internal/session"
	"github.com/factlens/factlens/internal/streaming"
	"github.com/factlens/factlens/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to the service config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.Endpoint,
	}, logger); err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}

	// Parsing rules: load once, then hot-reload on file change. An empty
	// path means the built-in defaults with no watcher.
	holder := report.NewHolder(nil)
	if cfg.Rules.Path != "" {
		rules, err := report.LoadRules(cfg.Rules.Path)
		if err != nil {
			logger.Fatal("Failed to load parsing rules", zap.Error(err))
		}
		holder.Swap(rules)
		watcher, err := config.NewWatcher(filepath.Dir(cfg.Rules.Path), logger)
		if err != nil {
			logger.Warn("Rules hot-reload unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
			base := filepath.Base(cfg.Rules.Path)
			watcher.Validate(base, func(data []byte) error {
				var probe report.Rules
				return yaml.Unmarshal(data, &probe)
			})
			watcher.OnChange(base, func(event config.ChangeEvent) error {
				reloaded, err := report.LoadRules(cfg.Rules.Path)
				if err != nil {
					return err
				}
				holder.Swap(reloaded)
				logger.Info("Parsing rules reloaded", zap.String("file", event.File))
				return nil
			})
		}
	}

	sessions, err := session.NewManager(cfg.Redis.Addr, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer sessions.Close()
	sessions.SetSaveDelay(cfg.Session.SaveDelay())

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.NewStore(cfg.Redis.Addr, cfg.Cache.TTL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize report cache", zap.Error(err))
		}
		defer store.Close()
	}

	var archive *db.Archive
	if cfg.Postgres.Enabled {
		archive, err = db.NewArchive(&db.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer archive.Close()
	}

	events := streaming.NewManager(256)

	providers := map[string]provider.Provider{
		"demo": provider.NewDemo(),
	}

	deps := pipeline.Deps{
		Providers: providers,
		Sessions:  sessions,
		Events:    events,
		Cache:     store,
		Rules:     holder,
		Logger:    logger,
	}
	if archive != nil {
		deps.Archive = archive
	}
	runner := pipeline.NewRunner(deps, pipeline.Config{
		RenderInterval: cfg.Stream.RenderInterval(),
		ProbeTimeout:   cfg.Links.ProbeTimeout(),
		ProbeRateLimit: cfg.Links.RateLimitPerSecond,
	})

	authMgr := auth.NewManager(cfg.Auth.JWTSecret, 24*time.Hour)
	authMw := auth.NewMiddleware(authMgr, !cfg.Auth.Enabled)

	healthMgr := health.NewManager(logger)
	healthRedis := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer healthRedis.Close()
	healthMgr.Register("redis", true, func(ctx context.Context) error {
		return healthRedis.Ping(ctx).Err()
	})
	if archive != nil {
		healthMgr.Register("postgres", false, archive.Ping)
	}

	api := http.NewServeMux()
	streamHandler := httpapi.NewStreamingHandler(events, logger)
	reportHandler := httpapi.NewReportHandler(runner, sessions, streamHandler, logger)
	reportHandler.RegisterRoutes(api)

	mux := http.NewServeMux()
	mux.Handle("/v1/", authMw.Wrap(api))
	healthMgr.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("API server listening",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("auth", cfg.Auth.Enabled))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("API server shutdown", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
