package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/background"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/metrics"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/repositories"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Counter store: Redis when configured, otherwise process-local
	var counters services.CounterStore
	if cfg.Redis.URL != "" {
		redisStore, err := repositories.DialRedisCounterStore(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisStore.Close()
		counters = redisStore
		logger.Info("using redis counter store", pkglogger.RedactedAttr("redis_url", cfg.Redis.URL, cfg.Server.Env))
	} else {
		counters = repositories.NewMemoryCounterStore(nil)
		logger.Warn("REDIS_URL not set, using in-memory counter store")
	}

	// Optional database probe
	var db *database.DB
	if cfg.Database.Enabled() {
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to configure database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
	}

	// Alert ledger and its retention loop
	alertStore := repositories.NewAlertStore(cfg.Detection.AlertMaxCount, cfg.Detection.AlertRetention, nil)
	retention := background.NewRetentionManager(alertStore, logger, cfg.Detection.AlertPruneInterval, nil)

	// Notification channels
	registrations := notificationChannels(ctx, cfg, logger)
	dispatcher := services.NewNotificationDispatcher(services.DispatcherConfig{
		QueueSize:    cfg.Notify.QueueSize,
		SendTimeout:  cfg.Notify.SendTimeout,
		RetryBackoff: cfg.Notify.RetryBackoff,
		RateWindow:   cfg.Notify.RateWindow,
	}, m, logger, registrations...)

	// Detection
	tracker := services.NewLoginAttemptTracker(counters, services.TrackerConfig{
		Threshold:     cfg.Detection.BruteForceThreshold,
		FailureWindow: cfg.Detection.BruteForceWindow,
		SeenIPTTL:     cfg.Detection.SeenIPTTL,
	}, m, logger)
	detector := services.NewDetector(tracker, alertStore, dispatcher, services.DetectorConfig{
		DedupWindow:             cfg.Detection.BruteForceWindow,
		AllowedUploadExtensions: cfg.Detection.AllowedUploadExtensions,
	}, m, logger)

	// Health
	probes := []services.Probe{
		services.NewConnectivityProbe("cache", counters, cfg.Health.SlowProbeThreshold),
		services.NewDiskProbe(cfg.Health.DiskPath, cfg.Health.DiskMinFreePercent),
		services.NewMemoryProbe(cfg.Health.MemoryMinAvailablePercent),
	}
	if db != nil {
		probes = append(probes, services.NewDatabaseProbe(db, cfg.Health.SlowProbeThreshold, m))
	}
	aggregator := services.NewHealthAggregator(services.HealthConfig{
		CacheTTL:     cfg.Health.CacheTTL,
		ProbeTimeout: cfg.Health.ProbeTimeout,
	}, m, logger, probes...)

	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middlewareCustom.RequestMetrics(m))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, routes.Handlers{
		Alerts: handlers.NewAlertHandler(alertStore, nil, logger),
		Events: handlers.NewEventHandler(detector, m, nil, logger),
		Health: handlers.NewHealthHandler(aggregator),
	}, routes.Options{
		Verifier:      auth.NewTokenVerifier(cfg.Auth.JWTSecret),
		OperatorRoles: cfg.Auth.OperatorRoles,
		IngestRoles:   cfg.Auth.IngestRoles,
		Inspector:     detector,
		IPConfig:      ipConfig,
		Metrics:       m,
		Logger:        logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background work
	dispatcher.Start(ctx)
	go retention.Start(ctx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	retention.Stop()
	dispatcher.Stop()
	cancel()

	logger.Info("server stopped gracefully")
}

// notificationChannels builds the enabled channels. A channel that cannot be
// configured is skipped so alerts still reach the others.
func notificationChannels(ctx context.Context, cfg *config.Config, logger *slog.Logger) []services.ChannelRegistration {
	var regs []services.ChannelRegistration

	if cfg.Notify.LogEnabled {
		regs = append(regs, services.ChannelRegistration{Channel: services.NewLogChannel(logger)})
	}

	if cfg.Notify.EmailEnabled {
		email, err := services.NewSESEmailChannel(ctx, cfg.Notify.AWSRegion, cfg.Notify.EmailFrom, cfg.Notify.EmailRecipients, logger)
		if err != nil {
			logger.Error("email channel disabled", slog.Any("error", err))
		} else {
			regs = append(regs, services.ChannelRegistration{
				Channel:      email,
				RateLimit:    cfg.Notify.EmailRateLimit,
				TypeCooldown: cfg.Notify.EmailCooldown,
			})
		}
	}

	if cfg.Notify.TelegramEnabled() {
		var opts []services.TelegramOption
		if cfg.Notify.TelegramTemplate != "" {
			tmpl, err := services.ParseTelegramTemplate(cfg.Notify.TelegramTemplate)
			if err != nil {
				logger.Error("invalid TELEGRAM_TEMPLATE, using default message", slog.Any("error", err))
			} else {
				opts = append(opts, services.WithTelegramTemplate(tmpl))
			}
		}
		regs = append(regs, services.ChannelRegistration{
			Channel:   services.NewTelegramChannel(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, opts...),
			RateLimit: cfg.Notify.TelegramRateLimit,
		})
	}

	return regs
}
