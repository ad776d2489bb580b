package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/carebridge/intake/internal/types"
	"github.com/rs/zerolog"
)

// Directory maintains the shared staff roster. Reads hand out copies;
// load mutation goes through Increment/DecrementLoad and is the caller's
// responsibility after accepting a routing result.
type Directory struct {
	mu     sync.RWMutex
	staff  map[string]*types.StaffMember
	logger zerolog.Logger
}

// NewDirectory creates an empty staff directory
func NewDirectory(logger zerolog.Logger) *Directory {
	return &Directory{
		staff:  make(map[string]*types.StaffMember),
		logger: logger.With().Str("component", "directory").Logger(),
	}
}

// Upsert adds or replaces a staff member. A zero CreatedAt is stamped now.
func (d *Directory) Upsert(member types.StaffMember) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if member.CreatedAt.IsZero() {
		if existing, ok := d.staff[member.ID]; ok {
			member.CreatedAt = existing.CreatedAt
		} else {
			member.CreatedAt = time.Now()
		}
	}
	m := member
	d.staff[member.ID] = &m
}

// Get returns a copy of the staff member with the given id
func (d *Directory) Get(id string) (types.StaffMember, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.staff[id]
	if !ok {
		return types.StaffMember{}, false
	}
	return *m, true
}

// List returns all staff members, admins excluded unless requested, ordered
// by creation time for a stable directory listing
func (d *Directory) List(includeAdmins bool) []types.StaffMember {
	d.mu.RLock()
	out := make([]types.StaffMember, 0, len(d.staff))
	for _, m := range d.staff {
		if m.Role == types.RoleAdmin && !includeAdmins {
			continue
		}
		out = append(out, *m)
	}
	d.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetActive flips a member's active flag, reporting whether the id exists
func (d *Directory) SetActive(id string, active bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.staff[id]
	if !ok {
		return false
	}
	m.Active = active
	return true
}

// IncrementLoad bumps a member's current load after an assignment
func (d *Directory) IncrementLoad(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.staff[id]; ok {
		m.CurrentLoad++
	}
}

// DecrementLoad releases one assignment, never going below zero
func (d *Directory) DecrementLoad(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.staff[id]; ok && m.CurrentLoad > 0 {
		m.CurrentLoad--
	}
}

// Resolve selects a member for the requested specialization from the current
// roster. See Select for the algorithm.
func (d *Directory) Resolve(specialization string) types.RoutingResult {
	candidates := d.snapshot()
	result := Select(specialization, candidates)
	d.logResult("resolve", specialization, result)
	return result
}

// ResolveDefault runs the no-specialization fallback chain
func (d *Directory) ResolveDefault() types.RoutingResult {
	candidates := d.snapshot()
	result := SelectDefault(candidates)
	d.logResult("resolve_default", "", result)
	return result
}

// Validate reports whether the referenced member exists and is active.
// Callers holding a cached routing decision re-validate before using it.
func (d *Directory) Validate(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.staff[id]
	return ok && m.Active
}

// Count returns the roster size
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.staff)
}

func (d *Directory) snapshot() []types.StaffMember {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.StaffMember, 0, len(d.staff))
	for _, m := range d.staff {
		out = append(out, *m)
	}
	return out
}

func (d *Directory) logResult(op, specialization string, result types.RoutingResult) {
	ev := d.logger.Debug().Str("op", op)
	if specialization != "" {
		ev = ev.Str("specialization", specialization)
	}
	if result.Executive != nil {
		ev.Str("staff_id", result.Executive.ID).
			Int("current_load", result.Executive.CurrentLoad).
			Bool("over_capacity", result.OverCapacity).
			Msg("routing decision")
		return
	}
	ev.Str("reason", result.Reason).Msg("routing found no candidate")
}
