package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/engage-scheduler/internal/config"
	"github.com/jwalitptl/engage-scheduler/internal/dispatch"
	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/notifier"
	"github.com/jwalitptl/engage-scheduler/internal/notifier/email"
	"github.com/jwalitptl/engage-scheduler/internal/notifier/telegram"
	"github.com/jwalitptl/engage-scheduler/internal/notifier/whatsapp"
	"github.com/jwalitptl/engage-scheduler/internal/repository/postgres"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
	"github.com/jwalitptl/engage-scheduler/pkg/logger"
	"github.com/jwalitptl/engage-scheduler/pkg/messaging/redis"
	"github.com/jwalitptl/engage-scheduler/pkg/metrics"
)

func setupHealthCheck(reporter *dispatch.HealthReporter, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		report, err := reporter.Report(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})

	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.Fatal(err, "health check server failed")
		}
	}()
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		log.Fatal().Err(err).Msg("failed to apply env overrides")
	}

	appLogger := logger.NewLogger(nil)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	// Initialize repositories
	scheduleRepo := postgres.NewScheduleRepository(db)

	// Initialize platform notifiers
	registry := notifier.NewRegistry()
	registry.Register(model.PlatformTelegram, telegram.NewClient(cfg.Notifiers.Telegram.BotToken))
	registry.Register(model.PlatformWhatsApp, whatsapp.NewClient(
		cfg.Notifiers.WhatsApp.AccessToken,
		cfg.Notifiers.WhatsApp.PhoneNumberID,
	))
	registry.Register(model.PlatformEmail, email.NewClient(email.Config{
		Host:     cfg.Notifiers.Email.Host,
		Port:     cfg.Notifiers.Email.Port,
		Username: cfg.Notifiers.Email.Username,
		Password: cfg.Notifiers.Email.Password,
		From:     cfg.Notifiers.Email.From,
		Subject:  cfg.Notifiers.Email.Subject,
	}))

	clk := clock.New()

	// Initialize and start dispatcher
	healthReporter := dispatch.NewHealthReporter(scheduleRepo, clk, cfg.Dispatcher.CycleInterval, cfg.Dispatcher.MissedPeriod)
	dispatcher := dispatch.NewDispatcher(
		scheduleRepo,
		registry,
		healthReporter,
		clk,
		appLogger,
		metrics.NewMetrics("engage_dispatcher"),
		broker,
		dispatch.Config{
			CycleInterval:  cfg.Dispatcher.CycleInterval,
			LookaheadSlack: cfg.Dispatcher.LookaheadSlack,
			BatchSize:      cfg.Dispatcher.BatchSize,
			WorkerCount:    cfg.Dispatcher.WorkerCount,
			MaxAttempts:    cfg.Dispatcher.MaxAttempts,
			SendTimeout:    cfg.Dispatcher.SendTimeout,
		},
	)

	// Setup health check endpoints
	setupHealthCheck(healthReporter, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	dispatcher.Start(ctx)
}
