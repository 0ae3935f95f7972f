package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openclaw/session-relay/internal/bridge"
	"github.com/openclaw/session-relay/internal/config"
	"github.com/openclaw/session-relay/internal/database"
	"github.com/openclaw/session-relay/internal/delivery"
	"github.com/openclaw/session-relay/internal/handler"
	"github.com/openclaw/session-relay/internal/jobs"
	"github.com/openclaw/session-relay/internal/middleware"
	"github.com/openclaw/session-relay/internal/redis"
	"github.com/openclaw/session-relay/internal/repository"
	"github.com/openclaw/session-relay/internal/service"
	"github.com/openclaw/session-relay/internal/session"
	"github.com/openclaw/session-relay/internal/sse"
	"github.com/openclaw/session-relay/internal/util"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the session manager and the notification outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the embedded schema before starting")

	return cmd
}

func serve(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	setLogLevel(cfg.LogLevel)

	var cipher *util.Cipher
	if cfg.EncryptionKey != "" {
		cipher, err = util.NewCipher(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("load encryption key: %w", err)
		}
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	err = db.Ping(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info().Msg("database connected")

	if migrate {
		if err := db.Migrate(context.Background()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("migrations applied")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRecordRepository(db.DB, cipher)
	notificationRepo := repository.NewNotificationRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	bridgeFactory := bridge.NewFactory(cfg.BridgeURL, redisClient)
	manager := session.NewManager(
		bridgeFactory,
		sessionRepo,
		bridgeFactory,
		broker,
		session.Options{
			RetryCeiling:      cfg.PairingRetryCeiling,
			SettleInterval:    cfg.SettleInterval(),
			InitRetryInterval: cfg.InitRetryInterval(),
		},
	)

	started, err := manager.StartAll(context.Background())
	if err != nil {
		log.Error().Err(err).Int("started", started).Msg("failed to start some sessions")
	} else {
		log.Info().Int("started", started).Msg("sessions started")
	}

	pipeline := delivery.NewPipeline(cfg.TypingMin(), cfg.TypingMax())

	sessionService := service.NewSessionService(sessionRepo, manager)
	notificationService := service.NewNotificationService(notificationRepo)
	messageService := service.NewMessageService(manager, pipeline)
	chatService := service.NewChatService(manager)

	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin, "api")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.HSTSEnabled)

	eventsHandler := handler.NewEventsHandler(broker, sessionService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	messageHandler := handler.NewMessageHandler(messageService)
	chatHandler := handler.NewChatHandler(chatService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Handle("/health", handler.NewHealthHandler(db))

	// SSE streams stay open past the request timeout and the rate limit window.
	r.Get("/v1/sessions/{tenantId}/events", eventsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(rateLimitMiddleware.Handler)

		r.Mount("/v1/sessions", sessionHandler.Routes())
		r.Mount("/v1/notifications", notificationHandler.Routes())
		r.Get("/v1/tenants/{tenantId}/notifications", notificationHandler.ListByTenant)
		r.Get("/v1/tenants/{tenantId}/contacts", chatHandler.Contacts)
		r.Get("/v1/tenants/{tenantId}/groups", chatHandler.Groups)
		r.Get("/v1/tenants/{tenantId}/chats", chatHandler.Chats)
		r.Get("/v1/tenants/{tenantId}/chats/{chatId}/messages", chatHandler.Messages)
		r.Post("/v1/messages", messageHandler.Send)
	})

	outbox := jobs.NewOutbox(notificationRepo, manager, pipeline, cfg.OutboxInterval())
	outbox.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		log.Info().Msg("shutting down server")
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	outbox.Stop()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("session manager did not stop cleanly")
	}

	log.Info().Msg("server stopped")
	return runErr
}
