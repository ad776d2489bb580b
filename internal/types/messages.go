package types

import "encoding/json"

// Channel event names. Outbound is client -> server, inbound is the reverse.
const (
	// Outbound
	EventChatStart      = "chatStart"
	EventUserMessage    = "userMessage"
	EventChatEnd        = "chatEnd"
	EventBehaviorUpdate = "behaviorUpdate"

	// Inbound
	EventChatStarted      = "chatStarted"
	EventBotMessage       = "botMessage"
	EventPatientProcessed = "patientProcessed"
	EventChatEnded        = "chatEnded"
	EventError            = "error"
)

// Behavior update kinds carried inside a behaviorUpdate event
const (
	BehaviorSessionStarted = "session_started"
	BehaviorPageView       = "page_view"
	BehaviorPageExit       = "page_exit"
	BehaviorScroll         = "scroll"
	BehaviorClick          = "click"
	BehaviorHeartbeat      = "heartbeat"
	BehaviorSessionEnded   = "session_ended"
)

// Envelope is the wire frame for every channel event in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into an Envelope
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: data}, nil
}

// BehaviorSummary is the scoring engine summary attached to chatStart
type BehaviorSummary struct {
	SessionID         string          `json:"sessionId"`
	PagesVisited      int             `json:"pagesVisited"`
	DepartmentsViewed []string        `json:"departmentsViewed"`
	TopDepartments    []string        `json:"topDepartments"` // top 3 by visit count
	TotalTimeSpent    int64           `json:"totalTimeSpent"` // seconds
	BehaviorScore     int             `json:"behaviorScore"`
	EngagementLevel   EngagementLevel `json:"engagementLevel"`
}

// SessionSnapshot is the enrichment attached to every behaviorUpdate
type SessionSnapshot struct {
	SessionID       string          `json:"sessionId"`
	PageCount       int             `json:"pageCount"`
	Departments     []string        `json:"departments"`
	TotalTimeSpent  int64           `json:"totalTimeSpent"` // ms
	Score           int             `json:"score"`
	EngagementLevel EngagementLevel `json:"engagementLevel"`
}

// ChatStartMsg opens a consultation session on the server
type ChatStartMsg struct {
	IPAddress    string          `json:"ip_address"`
	UserAgent    string          `json:"user_agent"`
	Timestamp    int64           `json:"timestamp"`
	BehaviorData BehaviorSummary `json:"behaviorData"`
}

// UserMessageMsg carries one visitor message
type UserMessageMsg struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ChatEndMsg closes a consultation session
type ChatEndMsg struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// BehaviorUpdateMsg reports one tracked interaction plus a session snapshot.
// Session and Timestamp are usually left empty by callers; the channel fills
// them in at emission time.
type BehaviorUpdateMsg struct {
	Event     string           `json:"event"` // one of the Behavior* kinds
	Data      json.RawMessage  `json:"data,omitempty"`
	Session   *SessionSnapshot `json:"session,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// ChatStartedMsg acknowledges chatStart with the server-assigned identity
type ChatStartedMsg struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// BotMessageMsg is an assistant response
type BotMessageMsg struct {
	Message           string `json:"message"`
	IsPatientComplete bool   `json:"isPatientComplete"`
}

// PatientProcessedMsg confirms the patient record was captured
type PatientProcessedMsg struct {
	Message string `json:"message"`
}

// ChatEndedMsg acknowledges chatEnd
type ChatEndedMsg struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorMsg reports a server-side processing error
type ErrorMsg struct {
	Message string `json:"message"`
}
