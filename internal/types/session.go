package types

// EngagementLevel is the coarse bucket derived from the behavior score
type EngagementLevel string

const (
	EngagementNone   EngagementLevel = "none"
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// PageType classifies a tracked page
type PageType string

const (
	PageTypeDepartment PageType = "department" // topic pages, counted in department interest
	PageTypeLanding    PageType = "landing"
	PageTypeContact    PageType = "contact"
	PageTypeGeneric    PageType = "generic"
)

// PageVisit is a single page view within a session.
// ExitTime stays nil until the visit is closed; TimeSpent is 0 until then.
type PageVisit struct {
	PageID       string   `json:"pageId"`
	DisplayName  string   `json:"displayName"`
	Type         PageType `json:"type"`
	EntryTime    int64    `json:"entryTime"` // epoch ms
	ExitTime     *int64   `json:"exitTime,omitempty"`
	TimeSpent    int64    `json:"timeSpent"` // ms, ExitTime - EntryTime once closed
	ScrollDepth  int      `json:"scrollDepth"` // max observed, 0-100
	Interactions int      `json:"interactions"`
}

// Click is a single tracked click
type Click struct {
	Element   string `json:"element"`
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"` // epoch ms
}

// Session is one continuous engagement by a single visitor.
// TotalTimeSpent only accounts for closed page visits.
type Session struct {
	SessionID          string         `json:"sessionId"`
	StartTime          int64          `json:"startTime"`    // epoch ms
	LastActivity       int64          `json:"lastActivity"` // epoch ms, refreshed on every save
	Pages              []PageVisit    `json:"pages"`
	TotalTimeSpent     int64          `json:"totalTimeSpent"` // ms across closed visits
	ScrollDepthByPage  map[string]int `json:"scrollDepthByPage"`
	Clicks             []Click        `json:"clicks"`
	DepartmentInterest map[string]int `json:"departmentInterest"` // pageID -> visit count
}

// CurrentVisit returns the most recent page visit that has not been closed,
// or nil if there is no open visit.
func (s *Session) CurrentVisit() *PageVisit {
	if len(s.Pages) == 0 {
		return nil
	}
	last := &s.Pages[len(s.Pages)-1]
	if last.ExitTime != nil {
		return nil
	}
	return last
}

// Departments returns the department page IDs seen this session, insertion
// order not guaranteed.
func (s *Session) Departments() []string {
	out := make([]string, 0, len(s.DepartmentInterest))
	for dept := range s.DepartmentInterest {
		out = append(out, dept)
	}
	return out
}

// TotalInteractions sums click interactions across all page visits
func (s *Session) TotalInteractions() int {
	total := 0
	for _, p := range s.Pages {
		total += p.Interactions
	}
	return total
}

// AverageScrollDepth returns the mean max scroll depth across all visits,
// 0 if there are no pages.
func (s *Session) AverageScrollDepth() float64 {
	if len(s.Pages) == 0 {
		return 0
	}
	sum := 0
	for _, p := range s.Pages {
		sum += p.ScrollDepth
	}
	return float64(sum) / float64(len(s.Pages))
}
