// Package routing selects staff members for incoming engagement sessions
// under specialization and capacity constraints.
//
// Resolution is a pure read: the resolver never mutates currentLoad. Callers
// apply the load increment after accepting a result, which means two
// concurrent resolutions can pick the same least-loaded member before either
// increment lands. The domain tolerates that transient over-assignment;
// deployments needing strict capacity must serialize resolve+increment
// themselves.
package routing

import (
	"sort"

	"github.com/carebridge/intake/internal/types"
)

// Select picks one staff member for the requested specialization from the
// given candidates, or returns a nil Executive with a reason code when the
// filtered candidate set is empty.
//
// Members are filtered to active ones serving the requested specialization
// (General matches everything), ordered by ascending current load with name
// as the deterministic tiebreak, and the first one with available capacity
// wins. When every candidate is at capacity the least-loaded one is returned
// anyway, flagged OverCapacity: a loaded human beats an unrouted session.
func Select(specialization string, candidates []types.StaffMember) types.RoutingResult {
	eligible := make([]types.StaffMember, 0, len(candidates))
	for _, m := range candidates {
		if m.Active && m.MatchesSpecialization(specialization) {
			eligible = append(eligible, m)
		}
	}

	if len(eligible) == 0 {
		return types.RoutingResult{Reason: types.ReasonNoCandidate}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].CurrentLoad != eligible[j].CurrentLoad {
			return eligible[i].CurrentLoad < eligible[j].CurrentLoad
		}
		return eligible[i].Name < eligible[j].Name
	})

	for i := range eligible {
		if eligible[i].HasCapacity() {
			selected := eligible[i]
			return types.RoutingResult{Executive: &selected}
		}
	}

	// Everybody is at capacity; take the least-loaded anyway
	selected := eligible[0]
	return types.RoutingResult{Executive: &selected, OverCapacity: true}
}

// SelectDefault picks a staff member when no specialization was requested:
// the earliest-created active admin, else the least-loaded active General
// specialist, else the least-loaded active specialist of any kind, else
// nobody.
func SelectDefault(candidates []types.StaffMember) types.RoutingResult {
	var admins, general, specialists []types.StaffMember
	for _, m := range candidates {
		if !m.Active {
			continue
		}
		switch {
		case m.Role == types.RoleAdmin:
			admins = append(admins, m)
		case m.Specialization == types.SpecGeneral:
			general = append(general, m)
		}
		if m.Role == types.RoleSpecialist {
			specialists = append(specialists, m)
		}
	}

	if len(admins) > 0 {
		sort.SliceStable(admins, func(i, j int) bool {
			return admins[i].CreatedAt.Before(admins[j].CreatedAt)
		})
		selected := admins[0]
		return types.RoutingResult{Executive: &selected}
	}

	byLoadThenAge := func(members []types.StaffMember) types.StaffMember {
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].CurrentLoad != members[j].CurrentLoad {
				return members[i].CurrentLoad < members[j].CurrentLoad
			}
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		})
		return members[0]
	}

	if len(general) > 0 {
		selected := byLoadThenAge(general)
		return types.RoutingResult{Executive: &selected}
	}
	if len(specialists) > 0 {
		selected := byLoadThenAge(specialists)
		return types.RoutingResult{Executive: &selected}
	}

	return types.RoutingResult{Reason: types.ReasonNoStaff}
}
