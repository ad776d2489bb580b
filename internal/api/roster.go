package api

import (
	"encoding/json"
	"net/http"

	"github.com/carebridge/intake/internal/routing"
	"github.com/carebridge/intake/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RosterEntry represents a single staff member in the roster payload
type RosterEntry struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Role           types.StaffRole `json:"role"`
	Active         *bool           `json:"active"`
	Specialization string          `json:"specialization"`
	MaxLoad        int             `json:"maxLoad"`
}

// RosterHandler handles bulk staff directory loading
type RosterHandler struct {
	directory *routing.Directory
	logger    zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler
func NewRosterHandler(directory *routing.Directory, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		directory: directory,
		logger:    logger.With().Str("component", "roster").Logger(),
	}
}

// HandleRoster handles POST /internal/staff/roster
func (h *RosterHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var roster []RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	registered := 0
	for _, entry := range roster {
		if entry.Name == "" {
			continue
		}
		member := types.StaffMember{
			ID:             entry.ID,
			Name:           entry.Name,
			Role:           entry.Role,
			Active:         true,
			Specialization: entry.Specialization,
			MaxLoad:        entry.MaxLoad,
		}
		if member.ID == "" {
			member.ID = uuid.New().String()
		}
		if member.Role == "" {
			member.Role = types.RoleSpecialist
		}
		if member.Specialization == "" {
			member.Specialization = types.SpecGeneral
		}
		if entry.Active != nil {
			member.Active = *entry.Active
		}
		h.directory.Upsert(member)
		registered++
	}

	h.logger.Info().Int("registered", registered).Msg("roster received")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{"registered": registered})
}

// HandleSetActive handles POST /internal/staff/{id}/active
func (h *RosterHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if !h.directory.SetActive(id, req.Active) {
		http.Error(w, "staff member not found", http.StatusNotFound)
		return
	}

	h.logger.Info().Str("staff_id", id).Bool("active", req.Active).Msg("staff activation changed")
	w.WriteHeader(http.StatusOK)
}
