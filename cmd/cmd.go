package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"squadup-backend/internal/config"
	"squadup-backend/internal/handlers"
	"squadup-backend/internal/middleware"
	"squadup-backend/internal/repository"
	"squadup-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Apply schema migrations
	if err := repository.Migrate(cfg.Database.DSN()); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	checkRepo := repository.NewCheckRepository(db)
	squadRepo := repository.NewSquadRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)
	wsHub := services.NewWSHub()
	notifier, err := services.NewPushNotifier(wsHub, userRepo, cfg.APNs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notifier")
	}
	checkService := services.NewCheckService(checkRepo, squadRepo, friendRepo)
	formationService := services.NewFormationService(squadRepo, checkRepo, eventRepo, notifier)
	membershipService := services.NewMembershipService(squadRepo, checkRepo)
	lifecycleService := services.NewLifecycleService(squadRepo, checkRepo, userRepo, notifier)
	importerService, err := services.NewImporterService(eventRepo, cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create importer service")
	}

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	checkHandler := handlers.NewCheckHandler(checkService)
	squadHandler := handlers.NewSquadHandler(formationService, membershipService, lifecycleService)
	eventHandler := handlers.NewEventHandler(importerService)
	sweepHandler := handlers.NewSweepHandler(lifecycleService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Put("/users/push-token", userHandler.UpdatePushToken)

			r.Get("/checks", checkHandler.ListActive)
			r.Post("/checks", checkHandler.CreateCheck)
			r.Patch("/checks/{check_id}", checkHandler.EditCheck)
			r.Delete("/checks/{check_id}", checkHandler.DeleteCheck)
			r.Post("/checks/{check_id}/respond", checkHandler.Respond)
			r.Delete("/checks/{check_id}/respond", checkHandler.Withdraw)

			r.Post("/squads", squadHandler.FormSquad)
			r.Get("/squads/{squad_id}", squadHandler.GetSquad)
			r.Post("/squads/{squad_id}/join", squadHandler.Join)
			r.Post("/squads/{squad_id}/leave", squadHandler.Leave)
			r.Post("/squads/{squad_id}/date", squadHandler.SetDate)
			r.Delete("/squads/{squad_id}/date", squadHandler.ClearDate)
			r.Post("/squads/{squad_id}/extend", squadHandler.Extend)
			r.Get("/squads/{squad_id}/messages", squadHandler.ListMessages)
			r.Post("/squads/{squad_id}/messages", squadHandler.PostMessage)

			r.Post("/events/import", eventHandler.ImportEvent)
			r.Get("/events/{event_id}", eventHandler.GetEvent)
		})
	})

	// Internal routes (trusted callers only)
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalAuthMiddleware(cfg.Sweep.InternalToken))
		r.Post("/internal/sweep", sweepHandler.RunSweep)
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Start the lifecycle sweep on its schedule
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Sweep.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := lifecycleService.RunSweep(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("Scheduled sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Sweep.Schedule).Msg("Invalid sweep schedule")
	}
	sweeper.Start()
	defer sweeper.Stop()
	log.Info().Str("schedule", cfg.Sweep.Schedule).Msg("Lifecycle sweep scheduled")

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
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

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
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

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
