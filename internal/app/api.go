package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/animation"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/fetcher"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/frames"
	v1 "github.com/jaennil/guide_helper/backend/tileanim/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/config"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("starting tile animation service", "config", cfg)

	ctx := logger.WithLogger(context.Background(), l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	tileCache, closeCache, err := NewTileCache(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize tile cache", "backend", cfg.Cache.Backend, "error", err)
	}
	defer closeCache()

	var f fetcher.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPConfig{
		Timeout:   cfg.Upstream.Timeout,
		UserAgent: cfg.Upstream.UserAgent,
		Referer:   cfg.Upstream.Referer,
		Headers:   cfg.Upstream.Headers,
	}, l)
	if tileCache != nil {
		f = fetcher.NewCachingFetcher(f, tileCache, l)
	}

	templates, err := TemplateURLs(cfg.Animation, l)
	if err != nil {
		l.Fatal("failed to load frame templates", "error", err)
	}
	l.Info("frame templates loaded", "frames", len(templates))

	status := handler.NewStatusObserver(l)
	engine, err := animation.New(animation.Config{
		FrameDuration: cfg.Animation.FrameDuration,
		MinZoom:       cfg.Animation.MinZoom,
		MaxZoom:       cfg.Animation.MaxZoom,
		TileSize:      cfg.Animation.TileSize,
		TemplateURLs:  templates,
		Workers:       cfg.Animation.Workers,
		StaticTiles:   cfg.Animation.StaticTiles,
		MaxTiles:      cfg.Animation.MaxTiles,
		FailedTiles:   animation.FailedTilePolicy(cfg.Animation.FailedTiles),
	}, f, status, l.With("component", "animation"))
	if err != nil {
		l.Fatal("failed to create animation engine", "error", err)
	}
	defer engine.Close()

	h := handler.NewHandler(validator.New(), engine, status)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)

	server := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}

// NewTileCache builds the byte cache selected by CACHE_BACKEND. The "none"
// backend returns a nil cache and the fetcher goes straight upstream.
func NewTileCache(cfg *config.Config, l logger.Logger) (cache.TileCache, func(), error) {
	noop := func() {}

	switch cfg.Cache.Backend {
	case "none":
		return nil, noop, nil
	case "memory", "":
		l.Info("memory cache enabled", "entries", cfg.Cache.MemoryEntries)
		return cache.NewMapCache(cfg.Cache.MemoryEntries), noop, nil
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, noop, err
		}
		l.Info("redis cache connected", "addr", cfg.Redis.Addr)
		return c, closer(c.Close, l), nil
	case "sqlite":
		c, err := cache.NewSQLiteCache(cfg.Cache.SQLiteDSN, l)
		if err != nil {
			return nil, noop, err
		}
		return c, closer(c.Close, l), nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func closer(fn func() error, l logger.Logger) func() {
	return func() {
		if err := fn(); err != nil {
			l.Error("failed to close tile cache", "error", err)
		}
	}
}

// TemplateURLs returns the frame templates from the manifest file when one
// is configured, otherwise the templates listed in the environment.
func TemplateURLs(cfg config.Animation, l logger.Logger) ([]string, error) {
	if cfg.FramesFile == "" {
		return cfg.TemplateURLs, nil
	}

	m, err := frames.Load(cfg.FramesFile)
	if err != nil {
		return nil, err
	}

	ingest, err := m.IngestTime()
	if err != nil {
		l.Warn("frame manifest has an unreadable ingest time", "file", cfg.FramesFile, "error", err)
	} else if !ingest.IsZero() {
		l.Info("frame manifest loaded", "file", cfg.FramesFile, "ingest", ingest, "age", time.Since(ingest).Round(time.Second))
	}
	return m.TemplateURLs(cfg.FrameStride), nil
}
