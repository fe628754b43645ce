package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bookleaf/tracker/internal/cache"
	"github.com/bookleaf/tracker/internal/config"
	"github.com/bookleaf/tracker/internal/db"
	"github.com/bookleaf/tracker/internal/freshdesk"
	httpapi "github.com/bookleaf/tracker/internal/http"
	"github.com/bookleaf/tracker/internal/mail"
	"github.com/bookleaf/tracker/internal/normalize"
	"github.com/bookleaf/tracker/internal/queue"
	"github.com/bookleaf/tracker/internal/service"
	"github.com/bookleaf/tracker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "author-tracker").Logger()

	consultants, err := config.LoadConsultants(cfg.ConsultantsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load consultants")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	var background sync.WaitGroup

	overrides := service.NewOverrideStore()
	trackerOpts := service.TrackerOptions{
		Consultants: consultants,
		Packages:    normalize.DefaultPackages(cfg.PackageIndianPrice, cfg.PackageIntlPrice),
		Overrides:   overrides,
		Logger:      logger,
	}
	bookingRepo := service.BookingRepository(service.NewMemoryBookings())
	deps := httpapi.Deps{}

	if cfg.DatabaseURL != "" {
		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		records, err := store.ListOverrides(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load overrides")
		}
		overrides.Load(records)
		logger.Info().Int("overrides", len(records)).Msg("override store loaded")

		buffer := service.NewWriteBuffer(store.UpsertOverrides, cfg.OverrideFlushInterval, cfg.OverrideFlushMax, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			buffer.Run(ctx)
		}()

		trackerOpts.Repo = store
		trackerOpts.Buffer = buffer
		bookingRepo = store
		deps.Store = store
	} else {
		logger.Warn().Msg("DATABASE_URL not set; authors, overrides and bookings live in memory")
	}

	if cfg.AMQPURL != "" {
		pub, err := queue.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Error().Err(err).Msg("rabbitmq unavailable; assignment events disabled")
		} else {
			defer pub.Close()
			trackerOpts.Events = pub
		}
	}

	tracker := service.NewTracker(trackerOpts)
	if err := tracker.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load authors")
	}

	var ticketCache service.TicketCache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; ticket cache kept in memory")
			_ = rc.Close()
		} else {
			defer rc.Close()
			ticketCache = rc
			deps.Cache = rc
		}
	}

	ticketOpts := service.TicketOptions{
		Cache:       ticketCache,
		Authors:     tracker,
		Consultants: consultants,
		MaxPages:    cfg.FreshdeskMaxPages,
		PushDelay:   cfg.FreshdeskPushDelay,
		Logger:      logger,
	}
	if fd := freshdesk.NewClient(cfg.FreshdeskDomain, cfg.FreshdeskAPIKey); fd.Configured() {
		ticketOpts.Provider = fd
	} else {
		logger.Warn().Msg("freshdesk not configured; ticket sync disabled")
	}
	tickets := service.NewTicketService(ticketOpts)

	if ticketOpts.Provider != nil {
		refresher := worker.NewTicketRefreshWorker(tickets, cfg.AutoRefreshInterval, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			refresher.Start(ctx)
		}()
	}

	baseURL := cfg.BookingBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}
	if cfg.BookingSecret == "" {
		logger.Warn().Msg("BOOKING_SECRET not set; booking links are forgeable")
	}
	bookings := &service.BookingService{
		Repo:    bookingRepo,
		Authors: tracker,
		Secret:  cfg.BookingSecret,
		BaseURL: baseURL,
		Logger:  logger,
	}
	if cfg.MailHost != "" {
		bookings.Mailer = mail.NewEmailSender(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPass, cfg.MailFrom)
	}

	deps.Tracker = tracker
	deps.Tickets = tickets
	deps.Bookings = bookings
	router := httpapi.Router(cfg, deps, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Int("consultants", len(consultants)).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	stop()
	background.Wait()
	logger.Info().Msg("server stopped")
}
