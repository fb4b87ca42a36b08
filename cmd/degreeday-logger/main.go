package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"

	httpapi "github.com/i474232898/degreeday-logger/internal/api/http"
	"github.com/i474232898/degreeday-logger/internal/config"
	"github.com/i474232898/degreeday-logger/internal/dglogger"
	"github.com/i474232898/degreeday-logger/internal/geocode"
	"github.com/i474232898/degreeday-logger/internal/notify"
	"github.com/i474232898/degreeday-logger/internal/scheduler"
	"github.com/i474232898/degreeday-logger/internal/store"
	"github.com/i474232898/degreeday-logger/internal/weather"
	"github.com/i474232898/degreeday-logger/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client and rate limiter for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	limiter := weather.NewRateLimiter(cfg.MinCallSpacing)

	// Providers with resilience (backoff + circuit breaker), tried in order.
	provs := []weather.SampleProvider{
		providers.NewOpenMeteoProvider(httpClient, limiter, cfg.TimeZone, cfg.ForecastDays),
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, limiter, cfg.WeatherAPIKey, cfg.TimeZone, cfg.ForecastDays))
	}

	cache := weather.NewSampleCache()
	source := weather.NewService(provs, cache, weather.ServiceConfig{
		TimeZone:    cfg.TimeZone,
		HistoryTTL:  cfg.HistoryCacheTTL,
		ForecastTTL: cfg.ForecastCacheTTL,
	}, logger)

	// Local snapshot always; PostgreSQL as the primary when configured.
	local, err := store.NewLocalStore(cfg.LocalCachePath, logger)
	if err != nil {
		logger.Error("failed to open local cache", "path", cfg.LocalCachePath, "error", err)
		os.Exit(1)
	}
	defer local.Close()

	var primary dglogger.Persistence
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Warn("database unavailable, starting from local cache", "error", err)
		}
		primary = pg
	}
	persistence := store.NewFallback(primary, local, logger)

	var notifier dglogger.Notifier = notify.Nop{}
	if cfg.MQTTBroker != "" {
		pub, err := notify.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopicPrefix, logger)
		if err != nil {
			logger.Warn("mqtt unavailable, progress will not be published", "broker", cfg.MQTTBroker, "error", err)
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	var geocoder dglogger.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoder = geocode.NewGoogleResolver(cfg.GeocoderAPIKey, logger)
	}

	manager := dglogger.NewManager(source, persistence, notifier, geocoder, dglogger.Config{
		DefaultLatitude:  cfg.DefaultLatitude,
		DefaultLongitude: cfg.DefaultLongitude,
		DefaultTarget:    cfg.DefaultTarget,
		RefreshCooldown:  cfg.RefreshCooldown,
		TimeZone:         cfg.TimeZone,
		RefreshOnChange:  true,
		RefreshTimeout:   2 * cfg.HTTPTimeout,
	}, logger)
	if err := manager.Load(ctx); err != nil {
		logger.Error("failed to load loggers", "error", err)
		os.Exit(1)
	}

	// Scheduler that periodically refreshes running loggers.
	sched := scheduler.New(manager, cache, cfg.RefreshInterval, cfg.TimeZone, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := httpapi.NewApp(true)
	httpapi.RegisterRoutes(app, manager, source, nil)

	go func() {
		logger.Info("http server listening", "port", cfg.Port, "timezone", cfg.TimeZone.String())
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
			stop()
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
}

func newLogger(cfg *config.AppConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
