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

	"skillconnect/internal/api"
	"skillconnect/internal/auth"
	"skillconnect/internal/config"
	"skillconnect/internal/database"
	"skillconnect/internal/domain"
	"skillconnect/internal/events"
	"skillconnect/internal/google"
	"skillconnect/internal/logging"
	"skillconnect/internal/metrics"
	"skillconnect/internal/models"
	"skillconnect/internal/realtime"
	"skillconnect/internal/repository"
	"skillconnect/internal/service"
	"skillconnect/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	idempotencyKeyTTL   = 24 * time.Hour
	idempotencyPurgeGap = time.Hour
	ledgerRefreshGap    = 10 * time.Minute
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

	trades := loadTrades(cfg, logger)

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	store := initStore(redisClient, logger)

	ttl, err := cfg.Auth.TokenTTL()
	if err != nil {
		return err
	}
	users := service.NewUserService(db, auth.NewBcryptHasher(bcrypt.DefaultCost),
		auth.NewJWTIssuer(cfg.Auth.JWTSecret, ttl), store, trades, logging.Component(logger, "users"))
	if err := users.SeedAdmin(ctx, cfg.Auth.Admin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Realtime fan-out: outbox worker -> (redis bridge ->) bus -> hub.
	bus := events.NewBus()
	var publisher domain.EventPublisher = bus
	if redisClient != nil {
		bridge := realtime.NewRedisBridge(redisClient, cfg.Realtime.RedisChannel, bus, logging.Component(logger, "realtime-bridge"))
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("realtime bridge stopped")
			}
		}()
	}

	ledger := initLedger(ctx, cfg, logger)

	outboxWorker := worker.NewOutboxWorker(db, publisher, ledger, redisClient, worker.Options{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		Retry: worker.RetryPolicy{
			MaxRetries:   cfg.Worker.MaxRetries,
			InitialDelay: cfg.Worker.InitialDelay,
			MaxDelay:     cfg.Worker.MaxDelay,
		},
	}, logging.Component(logger, "outbox-worker"))
	go outboxWorker.Start(ctx)

	marketplace := service.NewMarketplaceService(db, db, db, outboxWorker, service.MarketplaceOptions{
		RequestTTL:    cfg.Marketplace.RequestTTL,
		OfferETA:      cfg.Marketplace.OfferETA,
		LedgerEnabled: ledger != nil,
	}, logging.Component(logger, "marketplace"))

	hub := realtime.NewHub(marketplace, realtime.Options{
		PingInterval:   cfg.Realtime.PingInterval,
		SendBuffer:     cfg.Realtime.SendBuffer,
		AllowedOrigins: cfg.API.CORS.AllowedOrigins,
	}, logging.Component(logger, "realtime"))
	defer hub.Close()
	bus.Subscribe(events.AllEvents, hub.Deliver)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Users:         users,
		Marketplace:   marketplace,
		Reviews:       service.NewReviewService(db, db, logging.Component(logger, "reviews")),
		Notifications: service.NewNotificationService(db),
		Reports: service.NewReportService(db, store, trades, cfg.Reports.CacheTTL, cfg.Reports.Months,
			logging.Component(logger, "reports")),
		Hub:         hub,
		Idempotency: db,
		DB:          db,
	}, logging.Component(logger, "http"))

	backups := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go backups.Start(ctx)
	go purgeIdempotencyKeys(ctx, db, logger)

	startMetrics(ctx, cfg, logger)

	return serve(ctx, httpServer, cfg, logger)
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
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// loadTrades reads the optional trades catalog. Without it provider skills
// are free-form and skilled-per-trade is empty.
func loadTrades(cfg *config.Config, logger *zerolog.Logger) []models.Trade {
	path := cfg.TradesFile
	if v := os.Getenv("TRADES_PATH"); v != "" {
		path = v
	}
	if path == "" {
		return nil
	}

	trades, err := config.LoadTrades(path)
	if err != nil {
		logger.Warn().Err(err).Str("trades_path", path).Msg("trades catalog unavailable")
		return nil
	}
	logger.Info().Int("trades", len(trades)).Msg("trades catalog loaded")
	return trades
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initStore prefers Redis and keeps serving from memory while it is down.
func initStore(client *redis.Client, logger *zerolog.Logger) repository.Store {
	memory := repository.NewMemoryStore()
	if client == nil {
		return memory
	}
	return repository.NewFailoverStore(repository.NewRedisStore(client), memory, logging.Component(logger, "store"))
}

func initLedger(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.LedgerWriter {
	if !cfg.Google.LedgerEnabled() {
		return nil
	}

	ledger, err := google.NewBookingsLedger(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID, cfg.Google.BookingsSheet)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		return nil
	}
	if err := ledger.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("bookings sheet unreachable, share it with the service account")
		return nil
	}
	if err := ledger.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("write ledger header")
	}
	if err := ledger.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("warm up ledger cache")
	}
	go ledger.RefreshEvery(ctx, ledgerRefreshGap)

	logger.Info().Msg("google sheets ledger connected")
	return ledger
}

func purgeIdempotencyKeys(ctx context.Context, db *database.DB, logger *zerolog.Logger) {
	ticker := time.NewTicker(idempotencyPurgeGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeIdempotencyKeys(ctx, time.Now().Add(-idempotencyKeyTTL))
			if err != nil {
				logger.Error().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("purged", n).Msg("idempotency keys purged")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return errors.New("http server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
