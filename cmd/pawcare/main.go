package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pawcare/internal/api"
	"pawcare/internal/client"
	"pawcare/internal/config"
	"pawcare/internal/domain"
	"pawcare/internal/events"
	"pawcare/internal/journal"
	"pawcare/internal/lifecycle"
	"pawcare/internal/logging"
	"pawcare/internal/metrics"
	"pawcare/internal/repository"
	"pawcare/internal/service"
	"pawcare/internal/session"
	"pawcare/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	registry := lifecycle.NewRegistry(lifecycle.DefaultSpecs()...)
	if err := registry.Apply(cfg.Domains); err != nil {
		return fmt.Errorf("apply domain overrides: %w", err)
	}

	j, err := journal.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("open journal")
		return err
	}
	defer j.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	gateway := client.New(cfg.Backend, logger)
	if redisClient != nil && cfg.Backend.CacheTTLSeconds > 0 {
		gateway.UseRedisCache(redisClient, time.Duration(cfg.Backend.CacheTTLSeconds)*time.Second)
	}

	bus := events.NewEventBus()
	bus.Subscribe(events.Wildcard, events.LogHandler(logger))

	sessions := session.NewManager(registry, service.Deps{
		Gateway: gateway,
		Events:  bus,
		Journal: j,
		Logger:  logger,
	}, initSessionRepository(cfg, redisClient, logger), session.Config{
		TTL:          time.Duration(cfg.Sessions.TTLSeconds) * time.Second,
		ActionLimit:  cfg.Sessions.ActionLimit,
		ActionWindow: time.Duration(cfg.Sessions.ActionWindowSeconds) * time.Second,
	}, logger)
	defer sessions.Shutdown()

	scheduler, err := initScheduler(cfg, sessions, j, logger)
	if err != nil {
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, sessions, registry, gateway, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	return serve(ctx, httpServer, scheduler, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "pawcare-main").Logger()

	return cfg, &logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initSessionRepository prefers Redis and falls back to memory while Redis
// is down.
func initSessionRepository(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	ttl := time.Duration(cfg.Sessions.TTLSeconds) * time.Second
	memory := repository.NewMemorySessionRepository(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSessionRepository(repository.NewRedisSessionRepository(redisClient, ttl), memory, logger)
}

func initScheduler(cfg *config.Config, sessions *session.Manager, j *journal.Journal, logger *zerolog.Logger) (*worker.Scheduler, error) {
	scheduler := worker.NewScheduler(logger)

	if cfg.Refresh.Enabled {
		if err := scheduler.Add("refresh_sessions", cfg.Refresh.Schedule, worker.RefreshJob(sessions, logger)); err != nil {
			return nil, err
		}
	}
	if cfg.Database.Backup.Enabled {
		retry := worker.RetryPolicy{MaxRetries: 3, InitialDelay: 5 * time.Second, MaxDelay: time.Minute}
		if err := scheduler.Add("journal_backup", cfg.Database.Backup.Schedule, worker.BackupJob(j, cfg.Database.Backup, retry, logger)); err != nil {
			return nil, err
		}
	}
	if cfg.Database.RetentionDays > 0 {
		if err := scheduler.Add("journal_prune", "@daily", worker.PruneJob(j, cfg.Database.RetentionDays, logger)); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(
	ctx context.Context,
	httpServer *api.HTTPServer,
	scheduler *worker.Scheduler,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Strs("jobs", scheduler.Jobs()).Msg("pawcare started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	scheduler.Stop(shutdownCtx)

	logger.Info().Msg("pawcare stopped")
	return serveErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
