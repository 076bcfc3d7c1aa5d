package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/channel-session-go/internal/auth"
	"github.com/openclaw/channel-session-go/internal/config"
	"github.com/openclaw/channel-session-go/internal/database"
	"github.com/openclaw/channel-session-go/internal/dispatch"
	"github.com/openclaw/channel-session-go/internal/handler"
	"github.com/openclaw/channel-session-go/internal/jobs"
	"github.com/openclaw/channel-session-go/internal/middleware"
	"github.com/openclaw/channel-session-go/internal/pairing"
	"github.com/openclaw/channel-session-go/internal/redis"
	"github.com/openclaw/channel-session-go/internal/registry"
	"github.com/openclaw/channel-session-go/internal/repository"
	"github.com/openclaw/channel-session-go/internal/service"
	"github.com/openclaw/channel-session-go/internal/sse"
	"github.com/openclaw/channel-session-go/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), config.StartupTimeout)
	defer startupCancel()

	db, err := database.Connect(startupCtx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(startupCtx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	} else {
		log.Warn().Msg("REDIS_URL not set: events and rate limits stay in-process")
	}

	channelRepo := repository.NewChannelRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	contactRepo := repository.NewContactRepository(db.DB)

	// live sessions and agent listeners do not survive a restart
	if n, err := sessionRepo.DeleteAll(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to clear stale sessions")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("cleared stale sessions")
	}
	if _, err := channelRepo.ResetStatuses(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to reset channel statuses")
	}

	dispatcher := dispatch.NewDispatcher()

	broker := sse.NewBroker(redisClient)
	defer broker.Close()
	unbridge := sse.Bridge(dispatcher, broker)
	defer unbridge()

	agentCfg := transport.DefaultConfig()
	agentCfg.URL = cfg.AgentURL
	agentCfg.ConnectTimeout = cfg.AgentConnectTimeout()
	agentCfg.MaxConnectAttempts = cfg.AgentMaxConnectAttempts
	agent := transport.New(agentCfg)
	defer agent.Close()

	sessions := registry.New(sessionRepo, dispatcher, registry.WithChannelStatusWriter(channelRepo))
	coordinator := pairing.NewCoordinator(sessions,
		pairing.WithTTL(cfg.PairingCodeTTL()),
		pairing.WithPublisher(dispatcher),
	)

	contactService := service.NewContactService(contactRepo, dispatcher)
	sessionManager := service.NewSessionManager(agent, sessions, coordinator, dispatcher, channelRepo, contactService)
	channelService := service.NewChannelService(db, channelRepo, sessionRepo, sessionManager)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.MaxRequestBodySize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction())

	var limiter middleware.Limiter = middleware.NewRateLimiter()
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	}
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin)

	var redisPinger handler.Pinger
	if redisClient != nil {
		redisPinger = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	eventsHandler := handler.NewEventsHandler(broker, channelService, sessionManager)
	channelsHandler := handler.NewChannelsHandler(channelService, sessionManager, eventsHandler)
	contactsHandler := handler.NewContactsHandler(contactService)
	healthHandler := handler.NewHealthHandler(db, redisPinger, agent)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled() {
			r.Use(middleware.NewAuthMiddleware(auth.NewJWTService(cfg.APIJWTSecret)).Handler)
		} else {
			log.Warn().Msg("API_JWT_SECRET not set: /v1 is unauthenticated")
		}
		r.Use(rateLimitMiddleware.Handler)

		// event streams are long-lived and must not hit the request timeout
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/contacts", contactsHandler.Routes())
		})
		r.Mount("/channels", channelsHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(coordinator, contactService, cfg.ContactRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("agent", cfg.AgentURL).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	for _, channelID := range sessions.Channels() {
		if err := sessionManager.Disconnect(shutdownCtx, channelID, "server shutdown"); err != nil {
			log.Warn().Err(err).Str("channelId", channelID).Msg("disconnect on shutdown failed")
		}
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
