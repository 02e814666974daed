package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/engage-scheduler/internal/config"
	"github.com/jwalitptl/engage-scheduler/internal/dispatch"
	healthHandler "github.com/jwalitptl/engage-scheduler/internal/handler/health"
	scheduleHandler "github.com/jwalitptl/engage-scheduler/internal/handler/schedule"
	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/notifier"
	"github.com/jwalitptl/engage-scheduler/internal/notifier/email"
	"github.com/jwalitptl/engage-scheduler/internal/notifier/telegram"
	"github.com/jwalitptl/engage-scheduler/internal/notifier/whatsapp"
	"github.com/jwalitptl/engage-scheduler/internal/repository/postgres"
	"github.com/jwalitptl/engage-scheduler/internal/router"
	scheduleService "github.com/jwalitptl/engage-scheduler/internal/service/schedule"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
	"github.com/jwalitptl/engage-scheduler/pkg/logger"
	"github.com/jwalitptl/engage-scheduler/pkg/messaging/redis"
	"github.com/jwalitptl/engage-scheduler/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	scheduleRepo := postgres.NewScheduleRepository(db)

	clk := clock.New()

	// Initialize services
	scheduleSvc := scheduleService.NewService(scheduleRepo, clk, appLogger, scheduleService.Config{
		DefaultWindowSeconds: cfg.Schedule.DefaultWindowSeconds,
	})

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

	// Initialize Redis message broker
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	// Initialize and start dispatcher alongside the API
	healthReporter := dispatch.NewHealthReporter(scheduleRepo, clk, cfg.Dispatcher.CycleInterval, cfg.Dispatcher.MissedPeriod)
	dispatcher := dispatch.NewDispatcher(
		scheduleRepo,
		registry,
		healthReporter,
		clk,
		appLogger,
		metrics.NewMetrics("engage_scheduler"),
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

	dispatchCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(dispatchCtx)
	}()

	// Initialize handlers
	scheduleH := scheduleHandler.NewHandler(scheduleSvc)
	healthH := healthHandler.NewHandler(db, healthReporter)

	// Setup router
	r := router.NewRouter(scheduleH, healthH, router.Config{
		RateLimit: rate.Limit(cfg.Server.RateLimit),
		RateBurst: cfg.Server.RateBurst,
	})
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	// Start server
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	// Stop the dispatch loop first so the current cycle drains before
	// the HTTP surface goes away.
	stopDispatcher()
	<-dispatcherDone

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
