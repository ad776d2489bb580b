package sim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ControlAPI provides the HTTP control interface for the simulation
type ControlAPI struct {
	sim    *Simulator
	logger zerolog.Logger

	mu        sync.RWMutex
	startedAt *time.Time
}

// NewControlAPI creates a control API wrapping the simulator
func NewControlAPI(sim *Simulator, logger zerolog.Logger) *ControlAPI {
	return &ControlAPI{
		sim:    sim,
		logger: logger.With().Str("component", "control").Logger(),
	}
}

// SetupRoutes configures HTTP routes
func (api *ControlAPI) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/start", api.startHandler).Methods("POST")
	router.HandleFunc("/stop", api.stopHandler).Methods("POST")
	router.HandleFunc("/scale", api.scaleHandler).Methods("POST")
	router.HandleFunc("/stats", api.statsHandler).Methods("GET")
}

// healthHandler returns service health
func (api *ControlAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns current simulation status
func (api *ControlAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	startedAt := api.startedAt
	api.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"running":     api.sim.Running(),
		"concurrency": api.sim.Target(),
		"started_at":  startedAt,
	})
}

// startHandler starts the simulation
func (api *ControlAPI) startHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Concurrency int `json:"concurrency"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Concurrency <= 0 {
		req.Concurrency = 10 // default visitor population
	}

	if err := api.sim.Start(req.Concurrency); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			http.Error(w, "simulation already running", http.StatusConflict)
			return
		}
		api.logger.Error().Err(err).Msg("failed to start simulation")
		http.Error(w, "failed to start simulation", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	api.mu.Lock()
	api.startedAt = &now
	api.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":     "simulation started",
		"concurrency": req.Concurrency,
	})
}

// stopHandler stops the simulation
func (api *ControlAPI) stopHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.sim.Stop(); err != nil {
		if errors.Is(err, ErrNotRunning) {
			http.Error(w, "simulation not running", http.StatusConflict)
			return
		}
		api.logger.Error().Err(err).Msg("failed to stop simulation")
		http.Error(w, "failed to stop simulation", http.StatusInternalServerError)
		return
	}

	api.mu.Lock()
	api.startedAt = nil
	api.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "simulation stopped",
	})
}

// scaleHandler adjusts the number of concurrent visitors
func (api *ControlAPI) scaleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Concurrency int `json:"concurrency"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Concurrency < 0 {
		http.Error(w, "concurrency must not be negative", http.StatusBadRequest)
		return
	}

	if err := api.sim.Scale(req.Concurrency); err != nil {
		if errors.Is(err, ErrNotRunning) {
			http.Error(w, "simulation not running", http.StatusConflict)
			return
		}
		api.logger.Error().Err(err).Msg("failed to scale simulation")
		http.Error(w, "failed to scale simulation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":     "simulation scaled",
		"concurrency": req.Concurrency,
	})
}

// statsHandler returns simulation counters
func (api *ControlAPI) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.sim.Stats().Snapshot())
}

// Start starts the HTTP server and shuts it down when ctx is canceled
func (api *ControlAPI) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		api.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	api.logger.Info().Str("addr", addr).Msg("control API started")
	return server.ListenAndServe()
}
