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

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/trailwx/internal/api"
	"github.com/neexbeast/trailwx/internal/cache"
	"github.com/neexbeast/trailwx/internal/config"
	"github.com/neexbeast/trailwx/internal/danger"
	"github.com/neexbeast/trailwx/internal/engine"
	"github.com/neexbeast/trailwx/internal/format"
	"github.com/neexbeast/trailwx/internal/metrics"
	"github.com/neexbeast/trailwx/internal/provider"
	"github.com/neexbeast/trailwx/internal/router"
	"github.com/neexbeast/trailwx/internal/storage"
	"github.com/neexbeast/trailwx/internal/timezone"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	collector := metrics.NewCollector("trailwx")

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Run migrations.
	applied, err := storage.RunMigrations(ctx, pool, storage.Migrations, storage.MigrationsDir)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied", "files", applied)

	// Connect to Redis.
	redisClient, err := cache.Connect(ctx, cfg.Redis.URL, 0)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	zones, err := timezone.NewFinder(log)
	if err != nil {
		return fmt.Errorf("loading timezones: %w", err)
	}

	// Providers. met.no and NWS are rate limited; Open-Meteo is the global fallback,
	// the supplement source and the terrain elevation lookup.
	ua := cfg.Providers.UserAgent
	openMeteo := provider.NewOpenMeteo(ua, log)
	nws := provider.RateLimited(provider.NewNWS(ua, log), cfg.Providers.RatePerSecond, cfg.Providers.Burst)
	metno := provider.RateLimited(provider.NewMetNo(ua, log), cfg.Providers.RatePerSecond, cfg.Providers.Burst)

	// Wire dependencies.
	weather := router.New(router.Options{
		Registry:            router.DefaultRegistry(nws, metno),
		Global:              openMeteo,
		Supplement:          openMeteo,
		Cache:               cache.NewCache(redisClient, cfg.Cache.TTL),
		Timezones:           zones,
		Timeout:             cfg.Providers.Timeout,
		SupplementCountries: cfg.Providers.SupplementCountries,
		Metrics:             collector,
		Logger:              log,
	})

	eng := engine.New(engine.Options{
		Router:    weather,
		Elevation: openMeteo,
		Waypoints: storage.NewRepository(pool),
		Rater: danger.NewRater(danger.Thresholds{
			GustKmh:           cfg.Danger.GustKmh,
			PrecipMM:          cfg.Danger.PrecipMM,
			DailyPrecipMM:     cfg.Danger.DailyPrecipMM,
			PrecipProbability: cfg.Danger.PrecipProbability,
		}),
		Formatter: format.NewFormatter(format.Options{
			SegmentChars: cfg.Format.SegmentChars,
			MaxSegments:  cfg.Format.MaxSegments,
			Timezones:    zones,
			Metrics:      collector,
			Logger:       log,
		}),
		LookupTimeout: cfg.Engine.LookupTimeout,
		Concurrency:   cfg.Engine.RouteConcurrency,
		Logger:        log,
	})

	handlers := api.NewHandlers(eng, log)

	// Build router with pingers adapted for health check.
	mux := api.NewRouter(handlers, api.RouterConfig{
		Token:     cfg.Server.BearerToken,
		RateLimit: cfg.Server.RateLimit,
		DB:        &pgxPoolPinger{pool: pool},
		Redis:     &redisPingerAdapter{client: redisClient},
		Metrics:   collector,
		Log:       log,
	})

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// pgxPoolPinger adapts pgxpool.Pool to the api dbPinger interface.
type pgxPoolPinger struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisPingerAdapter adapts redis.Client to the api redisPinger interface.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
