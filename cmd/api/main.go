package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"zapis/internal/api"
	"zapis/internal/calendar"
	"zapis/internal/config"
	"zapis/internal/database"
	"zapis/internal/domain"
	"zapis/internal/events"
	"zapis/internal/export"
	"zapis/internal/logging"
	"zapis/internal/metrics"
	"zapis/internal/notify"
	"zapis/internal/repository"
	"zapis/internal/service"
	"zapis/internal/worker"

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

	servicesPath := os.Getenv("SERVICES_PATH")
	if servicesPath == "" {
		servicesPath = "configs/services.yaml"
	}
	services, err := config.LoadCatalog(servicesPath)
	if err != nil {
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("load service catalog")
		return err
	}

	rules, err := cfg.Schedule.Rules()
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	redisClient, sessions, memorySessions := initSessionStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	sender := initSender(cfg, &logger)

	eventBus := events.NewEventBus()
	notify.NewSubscriber(sender, cfg.Notifications.AdminUserID, rules.Location, logging.Component(&logger, "notify")).Register(eventBus)

	catalog := service.NewCatalogService(services)
	availability := service.NewAvailabilityService(db, catalog, rules)

	bookingService, err := service.NewBookingService(
		sessions, db, db, catalog, availability, rules, eventBus,
		service.BookingOptions{
			PhonePattern:     cfg.Booking.PhonePattern,
			SkipToken:        cfg.Booking.SkipToken,
			DefaultFirstName: cfg.Booking.DefaultFirstName,
			MaxNotesLength:   cfg.Booking.MaxNotesLength,
			StoreTimeout:     cfg.Booking.StoreTimeout,
		},
		logging.Component(&logger, "booking"),
	)
	if err != nil {
		return err
	}

	retry := worker.NewRetryPolicy(cfg.Callbacks.RetryDelay, cfg.Callbacks.MaxDelay)
	callbackService, err := service.NewCallbackService(
		db, db, rules, eventBus,
		service.CallbackOptions{
			PhonePattern: cfg.Booking.PhonePattern,
			MaxAttempts:  cfg.Callbacks.MaxAttempts,
			Backoff:      retry.NextDelay,
			StoreTimeout: cfg.Booking.StoreTimeout,
		},
		logging.Component(&logger, "callbacks"),
	)
	if err != nil {
		return err
	}

	reminders := startWorkers(ctx, cfg, db, rules, sender, callbackService, memorySessions, &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Booking:      bookingService,
		Callbacks:    callbackService,
		Availability: availability,
		Catalog:      catalog,
		Reminders:    reminders,
		Exporter:     export.NewExporter(rules, catalog, cfg.Exports.Path, logging.Component(&logger, "export")),
		Health:       healthChecks(db, redisClient),
	}, logging.Component(&logger, "http"))

	return serve(ctx, httpServer, cfg, &logger)
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

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	for _, dir := range []string{filepath.Dir(cfg.Database.Path), cfg.Exports.Path} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("Ошибка создания директории")
			return err
		}
	}
	return nil
}

// initSessionStore prefers Redis and falls back to process memory while Redis
// is unreachable. Without a configured address only memory is used.
func initSessionStore(
	ctx context.Context,
	cfg *config.Config,
	logger *zerolog.Logger,
) (*redis.Client, domain.SessionRepository, *repository.MemorySessionRepository) {
	memory := repository.NewMemorySessionRepository(cfg.Session.IdleTimeout)
	if cfg.Redis.Address == "" {
		logger.Info().Msg("Redis is not configured, sessions are kept in memory")
		return nil, memory, memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, starting on the memory fallback")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisSessionRepository(redisClient, cfg.Session.IdleTimeout)
	failover := repository.NewFailoverSessionRepository(primary, memory, logging.Component(logger, "sessions"))
	return redisClient, failover, memory
}

func initSender(cfg *config.Config, logger *zerolog.Logger) domain.NotificationSender {
	if cfg.Telegram.BotToken == "" {
		logger.Warn().Msg("Telegram token is not set, notifications go to the log")
		return notify.NewLogSender(logging.Component(logger, "notify"))
	}

	bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Telegram unavailable, notifications go to the log")
		return notify.NewLogSender(logging.Component(logger, "notify"))
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram sender ready")
	return notify.NewTelegramSender(bot)
}

// startWorkers launches the background loops. The returned sweeper is nil
// when reminders are disabled.
func startWorkers(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	rules calendar.Rules,
	sender domain.NotificationSender,
	callbacks worker.CallbackPromoter,
	memory *repository.MemorySessionRepository,
	logger *zerolog.Logger,
) api.ReminderSweeper {
	go memory.StartJanitor(ctx, cfg.Session.JanitorInterval, logging.Component(logger, "sessions"))

	poller := worker.NewCallbackPoller(callbacks, cfg.Callbacks.PollInterval, logging.Component(logger, "callback-poller"))
	go poller.Start(ctx)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		go backupService.Start(ctx)
	}

	if !cfg.Reminders.Enabled {
		logger.Info().Msg("Reminders are disabled")
		return nil
	}
	reminders := worker.NewReminderScheduler(
		db, sender, rules,
		time.Duration(cfg.Reminders.LeadHours)*time.Hour,
		cfg.Reminders.Interval,
		logging.Component(logger, "reminders"),
	)
	go reminders.Start(ctx)
	return reminders
}

func healthChecks(db *database.DB, redisClient *redis.Client) []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "database", Check: db.Ping}}
	if redisClient != nil {
		checks = append(checks, api.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return repository.Ping(ctx, redisClient) },
		})
	}
	return checks
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	if !cfg.API.Enabled || !cfg.API.HTTP.Enabled {
		logger.Warn().Msg("HTTP API is disabled in config, only background workers run")
		<-ctx.Done()
		return nil
	}

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
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}
