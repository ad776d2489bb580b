package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/intake/internal/api"
	"github.com/carebridge/intake/internal/auth"
	"github.com/carebridge/intake/internal/config"
	"github.com/carebridge/intake/internal/metrics"
	"github.com/carebridge/intake/internal/routing"
	"github.com/carebridge/intake/internal/storage"
	"github.com/carebridge/intake/internal/triage"
	"github.com/carebridge/intake/internal/types"
	"github.com/carebridge/intake/internal/ws"
	"github.com/carebridge/intake/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting intake server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence (DynamoDB or noop, from env)
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Staff directory with an optional dev seed
	directory := routing.NewDirectory(log.Logger)
	if os.Getenv("SEED_STAFF") == "true" {
		seedStaff(directory)
		log.Info().Int("staff", directory.Count()).Msg("seeded development staff")
	}

	// Triage service and visitor websocket endpoint
	triageService := triage.New(directory, store, log.Logger)
	wsHandler := ws.NewHandler(triageService, cfg, log.Logger)

	// REST handlers
	executives := api.NewExecutivesHandler(directory, log.Logger)
	roster := api.NewRosterHandler(directory, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())
	r.Get("/ws/visitor", wsHandler.ServeHTTP)
	executives.Routes(r)

	// Staff management routes (auth protected)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/internal/staff/roster", roster.HandleRoster)
		r.Post("/internal/staff/{id}/active", roster.HandleSetActive)
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"intake-server"}`)
}

// seedStaff loads a small local roster so routing works out of the box
func seedStaff(directory *routing.Directory) {
	members := []types.StaffMember{
		{Name: "Dr. Weber", Role: types.RoleAdmin, Specialization: types.SpecGeneral},
		{Name: "Dr. Brandt", Role: types.RoleSpecialist, Specialization: types.SpecCardiology, MaxLoad: 4},
		{Name: "Dr. Fischer", Role: types.RoleSpecialist, Specialization: types.SpecDermatology, MaxLoad: 4},
		{Name: "Dr. Keller", Role: types.RoleSpecialist, Specialization: types.SpecGeneral, MaxLoad: 6},
		{Name: "Dr. Roth", Role: types.RoleSpecialist, Specialization: types.SpecPediatrics, MaxLoad: 4},
	}
	for _, m := range members {
		m.ID = uuid.New().String()
		m.Active = true
		directory.Upsert(m)
	}
}
