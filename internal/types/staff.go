package types

import "time"

// StaffRole represents the role of a staff member
type StaffRole string

const (
	RoleAdmin      StaffRole = "admin"      // privileged, preferred default contact
	RoleSpecialist StaffRole = "specialist" // handles a single specialization
)

// Specialization catalog. SpecGeneral is a wildcard matching any request.
const (
	SpecGeneral     = "General"
	SpecCardiology  = "Cardiology"
	SpecDermatology = "Dermatology"
	SpecOrthopedics = "Orthopedics"
	SpecPediatrics  = "Pediatrics"
	SpecDental      = "Dental"
)

// AllSpecializations lists the fixed specialization catalog
var AllSpecializations = []string{
	SpecGeneral,
	SpecCardiology,
	SpecDermatology,
	SpecOrthopedics,
	SpecPediatrics,
	SpecDental,
}

// StaffMember is the sanitized directory view of an executive or clinician.
// CurrentLoad <= MaxLoad is advisory only; routing tolerates transient
// violations and the fallback path can select an over-capacity member.
type StaffMember struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Role           StaffRole `json:"role"`
	Active         bool      `json:"active"`
	Specialization string    `json:"specialization"`
	MaxLoad        int       `json:"maxLoad"` // 0 = unlimited
	CurrentLoad    int       `json:"currentLoad"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasCapacity reports whether the member can take another session under its
// nominal limit
func (m *StaffMember) HasCapacity() bool {
	return m.MaxLoad == 0 || m.CurrentLoad < m.MaxLoad
}

// MatchesSpecialization reports whether the member serves the requested
// specialization; General matches everything
func (m *StaffMember) MatchesSpecialization(requested string) bool {
	return m.Specialization == requested || m.Specialization == SpecGeneral
}

// Routing result reason codes
const (
	ReasonNoCandidate = "no candidate for specialization"
	ReasonNoStaff     = "no active staff available"
)

// RoutingResult is the outcome of a resolve call. Executive is nil when no
// candidate exists at all; Reason is set in that case. OverCapacity marks a
// fallback selection that exceeded the member's nominal limit.
type RoutingResult struct {
	Executive    *StaffMember `json:"executive"`
	Reason       string       `json:"reason,omitempty"`
	OverCapacity bool         `json:"overCapacity,omitempty"`
}

// EngagementRecord is the persisted summary of a finished session
type EngagementRecord struct {
	DateKey        string          `json:"DateKey" dynamodbav:"DateKey"` // YYYY-MM-DD partition key
	SessionID      string          `json:"SessionID" dynamodbav:"SessionID"`
	StartTime      int64           `json:"StartTime" dynamodbav:"StartTime"`
	EndTime        int64           `json:"EndTime" dynamodbav:"EndTime"`
	PagesVisited   int             `json:"PagesVisited" dynamodbav:"PagesVisited"`
	TotalTimeSpent int64           `json:"TotalTimeSpent" dynamodbav:"TotalTimeSpent"` // ms
	Departments    []string        `json:"Departments" dynamodbav:"Departments"`
	Score          int             `json:"Score" dynamodbav:"Score"`
	Level          EngagementLevel `json:"Level" dynamodbav:"Level"`
}

// AssignmentRecord is the persisted record of one routed chat
type AssignmentRecord struct {
	DateKey        string     `json:"DateKey" dynamodbav:"DateKey"`
	ChatID         string     `json:"ChatID" dynamodbav:"ChatID"`
	SessionID      string     `json:"SessionID" dynamodbav:"SessionID"`
	StaffID        string     `json:"StaffID" dynamodbav:"StaffID"`
	Specialization string     `json:"Specialization" dynamodbav:"Specialization"`
	AssignTime     time.Time  `json:"AssignTime" dynamodbav:"AssignTime"`
	ReleaseTime    *time.Time `json:"ReleaseTime,omitempty" dynamodbav:"ReleaseTime,omitempty"`
	Messages       int        `json:"Messages" dynamodbav:"Messages"`
}
