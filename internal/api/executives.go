package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/carebridge/intake/internal/routing"
	"github.com/carebridge/intake/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ExecutivesHandler serves the read-mostly routing surface over the staff
// directory
type ExecutivesHandler struct {
	directory *routing.Directory
	logger    zerolog.Logger
}

// NewExecutivesHandler creates a new ExecutivesHandler
func NewExecutivesHandler(directory *routing.Directory, logger zerolog.Logger) *ExecutivesHandler {
	return &ExecutivesHandler{
		directory: directory,
		logger:    logger.With().Str("component", "executives").Logger(),
	}
}

// Routes mounts the executives endpoints on a chi router
func (h *ExecutivesHandler) Routes(r chi.Router) {
	r.Get("/executives", h.HandleList)
	r.Get("/executives/by-specialization", h.HandleBySpecialization)
	r.Get("/executives/default", h.HandleDefault)
	r.Get("/executives/{id}/validate", h.HandleValidate)
}

// HandleList handles GET /executives?includeAdmins=bool
func (h *ExecutivesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	includeAdmins := false
	if v := r.URL.Query().Get("includeAdmins"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid includeAdmins", http.StatusBadRequest)
			return
		}
		includeAdmins = parsed
	}

	writeJSON(w, map[string]interface{}{
		"executives": h.directory.List(includeAdmins),
	})
}

// HandleBySpecialization handles GET /executives/by-specialization.
// A missing specialization is a malformed request, not a resolver miss.
func (h *ExecutivesHandler) HandleBySpecialization(w http.ResponseWriter, r *http.Request) {
	specialization := r.URL.Query().Get("specialization")
	if specialization == "" {
		http.Error(w, "specialization is required", http.StatusBadRequest)
		return
	}

	result := h.directory.Resolve(specialization)
	writeJSON(w, resultPayload(result))
}

// HandleDefault handles GET /executives/default using the fallback chain
func (h *ExecutivesHandler) HandleDefault(w http.ResponseWriter, r *http.Request) {
	result := h.directory.ResolveDefault()
	writeJSON(w, resultPayload(result))
}

// HandleValidate handles GET /executives/{id}/validate
func (h *ExecutivesHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	valid := h.directory.Validate(id)
	payload := map[string]interface{}{"valid": valid}
	if valid {
		if member, ok := h.directory.Get(id); ok {
			payload["executive"] = member
		}
	}
	writeJSON(w, payload)
}

func resultPayload(result types.RoutingResult) map[string]interface{} {
	payload := map[string]interface{}{
		"executive": result.Executive,
	}
	if result.Reason != "" {
		payload["reason"] = result.Reason
	}
	if result.OverCapacity {
		payload["overCapacity"] = true
	}
	return payload
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
