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

	"gardiens/internal/api"
	"gardiens/internal/config"
	"gardiens/internal/database"
	"gardiens/internal/domain"
	"gardiens/internal/events"
	"gardiens/internal/export"
	"gardiens/internal/logging"
	"gardiens/internal/metrics"
	"gardiens/internal/repository"
	"gardiens/internal/service"
	"gardiens/internal/worker"

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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Backup.Enabled {
		go database.NewBackupService(db, cfg.Database.Backup, &logger).Start(ctx)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	exporter := export.NewExporter(cfg.Exports.Path, &logger)
	eventBus := events.NewEventBus()
	bookings := service.NewBookingService(db, eventBus, cfg.Engine, &logger)
	drafts := service.NewDraftService(initDraftRepository(cfg, redisClient, &logger), cfg.Drafts, &logger)

	subscribeBookingEvents(eventBus, &logger)
	if cfg.Exports.AutoRebuild {
		exportWorker := worker.NewExportWorker(bookings, exporter, redisClient, worker.RetryPolicy{}, &logger)
		eventBus.Subscribe(events.EventBookingCreated, exportWorker.HandleBookingEvent)
		eventBus.Subscribe(events.EventBookingCancelled, exportWorker.HandleBookingEvent)
		go exportWorker.Start(ctx)
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, db, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}

	httpServer := api.NewHTTPServer(&cfg.API, api.Dependencies{
		Bookings: bookings,
		Drafts:   drafts,
		Exporter: exporter,
		DB:       db,
	}, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initDraftRepository keeps drafts in redis when available and falls back to
// process memory when redis is missing or goes down.
func initDraftRepository(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.DraftRepository {
	ttl := time.Duration(cfg.Drafts.TTLMinutes) * time.Minute
	memory := repository.NewMemoryDraftRepository(ttl)
	if client == nil {
		return memory
	}
	return repository.NewFailoverDraftRepository(repository.NewRedisDraftRepository(client, ttl), memory, logger)
}

func subscribeBookingEvents(bus *events.EventBus, logger *zerolog.Logger) {
	l := logger.With().Str("component", "events").Logger()
	handler := func(ev *events.Event) error {
		var payload events.BookingEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		l.Info().
			Str("event", ev.Type).
			Str("reference", payload.Reference).
			Int64("service_id", payload.ServiceID).
			Int64("variant_id", payload.VariantID).
			Str("start_date", payload.StartDate).
			Str("reason", payload.Reason).
			Msg("booking event")
		return nil
	}
	bus.Subscribe(events.EventBookingCreated, handler)
	bus.Subscribe(events.EventBookingCancelled, handler)
	bus.Subscribe(events.EventBookingRejected, handler)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()
	go grpcServer.WatchHealth(ctx, 15*time.Second)

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
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
