package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/blob"
	"pulse-link-backend/internal/config"
	"pulse-link-backend/internal/handlers"
	"pulse-link-backend/internal/middleware"
	"pulse-link-backend/internal/push"
	"pulse-link-backend/internal/repository"
	"pulse-link-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize repositories
	deviceRepo := repository.NewDeviceRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	heartbeatRepo := repository.NewHeartbeatRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	encounterRepo := repository.NewEncounterRepository(db)
	voiceRepo := repository.NewVoiceRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// Clip storage
	blobs, err := blob.NewS3Store(
		context.Background(),
		cfg.AWS.Region,
		cfg.AWS.S3Bucket,
		cfg.AWS.AccessKey,
		cfg.AWS.SecretKey,
		cfg.AWS.Endpoint,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create S3 store")
	}

	// Push delivery
	hub := push.NewHub()
	var apns *push.APNsSender
	if cfg.APNs.KeyFile != "" {
		apns, err = push.NewAPNsSender(
			cfg.APNs.KeyFile,
			cfg.APNs.KeyID,
			cfg.APNs.TeamID,
			cfg.APNs.Topic,
			cfg.APNs.Production,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs sender")
		}
	} else {
		log.Warn().Msg("APNs not configured; offline devices rely on polling")
	}
	dispatcher := push.NewDispatcher(hub, apns, deviceRepo)

	// Initialize services
	deviceService := services.NewDeviceService(deviceRepo, cfg.JWT.Secret)
	recordService := services.NewRecordService(
		sessionRepo,
		heartbeatRepo,
		locationRepo,
		encounterRepo,
		voiceRepo,
		subRepo,
		blobs,
		dispatcher,
	)

	// Initialize handlers
	deviceHandler := handlers.NewDeviceHandler(deviceService)
	recordHandler := handlers.NewRecordHandler(recordService)
	wsHandler := handlers.NewWebSocketHandler(hub, deviceService)

	limiter := middleware.NewRateLimiter(
		cfg.Server.RateLimit.Requests,
		time.Duration(cfg.Server.RateLimit.WindowSeconds)*time.Second,
	)
	defer limiter.Stop()

	// Setup router
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", recordHandler.Status)
		r.Post("/devices", deviceHandler.Register)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deviceService))
			r.Use(limiter.Middleware)

			r.Put("/devices/push-token", deviceHandler.SetPushToken)

			r.Post("/sessions", recordHandler.CreateSession)
			r.Get("/sessions", recordHandler.FindSession)
			r.Delete("/sessions", recordHandler.DeleteSessions)
			r.Get("/sessions/{id}", recordHandler.GetSession)
			r.Post("/sessions/{id}/redeem", recordHandler.RedeemSession)

			r.Post("/heartbeats", recordHandler.CreateHeartbeat)
			r.Get("/heartbeats/latest", recordHandler.LatestHeartbeat)

			r.Post("/locations", recordHandler.CreateLocation)
			r.Delete("/locations", recordHandler.DeleteLocations)
			r.Get("/locations/latest", recordHandler.LatestLocation)

			r.Post("/encounters", recordHandler.CreateEncounter)

			r.Post("/voice", recordHandler.CreateVoiceMessage)
			r.Get("/voice/latest", recordHandler.LatestVoiceMessage)
			r.Get("/voice/{id}", recordHandler.GetVoiceMessage)
			r.Delete("/voice/{id}", recordHandler.DeleteVoiceMessage)

			r.Post("/subscriptions", recordHandler.Subscribe)
			r.Delete("/subscriptions/{id}", recordHandler.Unsubscribe)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Retention: heartbeats older than a week carry no signal
	go pruneHeartbeats(heartbeatRepo)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func configPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return "config.yaml"
}

// pruneHeartbeats drops aged heartbeat rows once an hour.
func pruneHeartbeats(repo *repository.HeartbeatRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		cutoff := time.Now().AddDate(0, 0, -7)
		n, err := repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("heartbeat pruning failed")
		} else if n > 0 {
			log.Info().Int64("pruned", n).Msg("old heartbeats removed")
		}
		cancel()
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

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
