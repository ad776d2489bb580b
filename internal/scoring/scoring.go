// Package scoring converts a session snapshot into a 0-100 behavior score
// and a coarse engagement level. Scoring is pure: it never mutates the
// session and is safe to call on every outbound event.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/carebridge/intake/internal/types"
)

// Engagement level thresholds
const (
	highThreshold   = 75
	mediumThreshold = 50
	lowThreshold    = 25
)

// Score computes the weighted behavior score for a session at the given time
func Score(sess *types.Session, now time.Time) int {
	if sess == nil {
		return 0
	}

	distinctTopics := len(sess.DepartmentInterest)
	totalVisits := 0
	for _, n := range sess.DepartmentInterest {
		totalVisits += n
	}
	revisits := totalVisits - distinctTopics

	minutes := float64(sess.TotalTimeSpent) / 60000.0
	avgScroll := sess.AverageScrollDepth()
	pageCount := len(sess.Pages)
	interactions := sess.TotalInteractions()
	ageMinutes := float64(now.UnixMilli()-sess.StartTime) / 60000.0

	base := 0.0

	// Topic breadth (0-25)
	switch {
	case distinctTopics >= 3:
		base += 25
	case distinctTopics == 2:
		base += 18
	case distinctTopics == 1:
		base += 10
	}

	// Topic revisit bonus (0-10)
	base += math.Min(float64(revisits)*3, 10)

	// Time investment (0-20)
	switch {
	case minutes >= 10:
		base += 20
	case minutes >= 5:
		base += 15
	case minutes >= 3:
		base += 10
	case minutes >= 1:
		base += 5
	default:
		base += 2
	}

	// Content depth (0-15)
	switch {
	case avgScroll >= 80:
		base += 15
	case avgScroll >= 60:
		base += 10
	case avgScroll >= 40:
		base += 5
	default:
		base += 2
	}

	// Page depth (0-10)
	switch {
	case pageCount >= 8:
		base += 10
	case pageCount >= 5:
		base += 7
	case pageCount >= 3:
		base += 4
	case pageCount >= 2:
		base += 2
	}

	// Interaction density (0-10)
	base += math.Min(float64(interactions)*1.5, 10)

	// Recency (0-5)
	switch {
	case ageMinutes <= 5:
		base += 5
	case ageMinutes <= 15:
		base += 3
	case ageMinutes <= 30:
		base += 1
	}

	multiplier := 1.0
	if distinctTopics >= 2 {
		multiplier += 0.1
	}
	if avgScroll >= 70 {
		multiplier += 0.1
	}
	if interactions >= 5 {
		multiplier += 0.1
	}
	if minutes < 0.5 {
		multiplier -= 0.2
	}
	if avgScroll < 30 {
		multiplier -= 0.1
	}

	score := int(math.Round(base * multiplier))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Level maps a score to its engagement bucket
func Level(score int) types.EngagementLevel {
	switch {
	case score >= highThreshold:
		return types.EngagementHigh
	case score >= mediumThreshold:
		return types.EngagementMedium
	case score >= lowThreshold:
		return types.EngagementLow
	default:
		return types.EngagementNone
	}
}

// Snapshot builds the session enrichment attached to every outbound event
func Snapshot(sess *types.Session, now time.Time) types.SessionSnapshot {
	score := Score(sess, now)
	return types.SessionSnapshot{
		SessionID:       sess.SessionID,
		PageCount:       len(sess.Pages),
		Departments:     sess.Departments(),
		TotalTimeSpent:  sess.TotalTimeSpent,
		Score:           score,
		EngagementLevel: Level(score),
	}
}

// Summary builds the behaviorData payload for chatStart, including the top
// three departments by visit count
func Summary(sess *types.Session, now time.Time) types.BehaviorSummary {
	score := Score(sess, now)

	type deptCount struct {
		dept  string
		count int
	}
	counts := make([]deptCount, 0, len(sess.DepartmentInterest))
	for dept, n := range sess.DepartmentInterest {
		counts = append(counts, deptCount{dept, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].dept < counts[j].dept
	})

	top := make([]string, 0, 3)
	for _, c := range counts {
		if len(top) == 3 {
			break
		}
		top = append(top, c.dept)
	}

	return types.BehaviorSummary{
		SessionID:         sess.SessionID,
		PagesVisited:      len(sess.Pages),
		DepartmentsViewed: sess.Departments(),
		TopDepartments:    top,
		TotalTimeSpent:    sess.TotalTimeSpent / 1000,
		BehaviorScore:     score,
		EngagementLevel:   Level(score),
	}
}
