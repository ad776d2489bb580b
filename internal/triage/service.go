package triage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carebridge/intake/internal/metrics"
	"github.com/carebridge/intake/internal/routing"
	"github.com/carebridge/intake/internal/storage"
	"github.com/carebridge/intake/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service owns the lifecycle of visitor consultations: it assigns staff via
// the routing directory on chatStart, answers messages, and releases the
// assignment plus persists the engagement when the chat ends or the visitor
// disconnects.
type Service struct {
	directory *routing.Directory
	store     storage.Store
	logger    zerolog.Logger

	mu    sync.Mutex
	chats map[string]*activeChat // keyed by session ID

	// Now is replaceable in tests
	Now func() time.Time
}

type activeChat struct {
	chatID          string
	sessionID       string
	staffID         string
	staffName       string
	specialization  string
	summary         types.BehaviorSummary
	startedAt       time.Time
	messages        int
	patientComplete bool
}

// New creates a triage service backed by the given directory and store
func New(directory *routing.Directory, store storage.Store, logger zerolog.Logger) *Service {
	return &Service{
		directory: directory,
		store:     store,
		logger:    logger.With().Str("component", "triage").Logger(),
		chats:     make(map[string]*activeChat),
		Now:       time.Now,
	}
}

// StartChat assigns a staff member based on the visitor's behavior summary and
// opens a consultation. A session without department interest falls through to
// the default routing chain.
func (s *Service) StartChat(msg types.ChatStartMsg) types.ChatStartedMsg {
	sessionID := msg.BehaviorData.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	specialization := specializationFor(msg.BehaviorData.TopDepartments)

	var result types.RoutingResult
	if specialization == "" {
		result = s.directory.ResolveDefault()
	} else {
		result = s.directory.Resolve(specialization)
		if result.Executive == nil {
			result = s.directory.ResolveDefault()
		}
	}
	metrics.Get().RecordRoutingDecision(result)

	chat := &activeChat{
		chatID:         uuid.New().String(),
		sessionID:      sessionID,
		specialization: specialization,
		summary:        msg.BehaviorData,
		startedAt:      s.Now(),
	}

	greeting := "Welcome to Carebridge. How can we help you today?"
	if result.Executive != nil {
		s.directory.IncrementLoad(result.Executive.ID)
		chat.staffID = result.Executive.ID
		chat.staffName = result.Executive.Name
		greeting = fmt.Sprintf("Welcome to Carebridge. You are connected with %s (%s). How can we help you today?",
			result.Executive.Name, result.Executive.Specialization)
	}

	s.mu.Lock()
	// A repeated chatStart for the same session replaces the old chat
	if old, ok := s.chats[sessionID]; ok {
		s.releaseLocked(old, "restarted")
	}
	s.chats[sessionID] = chat
	s.mu.Unlock()

	metrics.Get().RecordChatStarted(msg.BehaviorData.EngagementLevel)

	s.logger.Info().
		Str("session_id", sessionID).
		Str("chat_id", chat.chatID).
		Str("staff_id", chat.staffID).
		Str("specialization", specialization).
		Int("score", msg.BehaviorData.BehaviorScore).
		Msg("chat started")

	return types.ChatStartedMsg{SessionID: sessionID, Message: greeting}
}

// HandleMessage processes one visitor message. The returned bot reply flags
// patient completion once contact details have been observed; the second
// return value is non-nil exactly once per chat, right after completion.
func (s *Service) HandleMessage(msg types.UserMessageMsg) (types.BotMessageMsg, *types.PatientProcessedMsg) {
	s.mu.Lock()
	chat, ok := s.chats[msg.SessionID]
	if !ok {
		s.mu.Unlock()
		return types.BotMessageMsg{Message: "No active consultation. Please start a chat first."}, nil
	}

	chat.messages++
	justCompleted := false
	if !chat.patientComplete && containsContactDetails(msg.Message) {
		chat.patientComplete = true
		justCompleted = true
	}
	complete := chat.patientComplete
	staffName := chat.staffName
	s.mu.Unlock()

	reply := types.BotMessageMsg{IsPatientComplete: complete}
	switch {
	case justCompleted:
		reply.Message = "Thank you, we have your contact details. Our team will reach out shortly."
	case staffName != "":
		reply.Message = fmt.Sprintf("Thanks for your message. %s will follow up with you. Could you share a phone number or email so we can reach you?", staffName)
	default:
		reply.Message = "Thanks for your message. Could you share a phone number or email so we can reach you?"
	}

	if justCompleted {
		return reply, &types.PatientProcessedMsg{Message: "Your request has been recorded."}
	}
	return reply, nil
}

// EndChat closes the consultation, releases the staff assignment and persists
// the engagement. Ending an unknown session is a no-op acknowledgment.
func (s *Service) EndChat(msg types.ChatEndMsg) types.ChatEndedMsg {
	s.release(msg.SessionID, msg.Reason)
	return types.ChatEndedMsg{SessionID: msg.SessionID, Reason: msg.Reason}
}

// Disconnect releases any consultation held by the session after the visitor
// connection dropped
func (s *Service) Disconnect(sessionID string) {
	s.release(sessionID, "disconnected")
}

// ActiveChats returns the number of open consultations
func (s *Service) ActiveChats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func (s *Service) release(sessionID, reason string) {
	s.mu.Lock()
	chat, ok := s.chats[sessionID]
	if ok {
		delete(s.chats, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.releaseUnlocked(chat, reason)
}

// releaseLocked is release for callers already holding s.mu; it removes the
// chat from the map before persisting. releaseUnlocked does not touch s.mu.
func (s *Service) releaseLocked(chat *activeChat, reason string) {
	delete(s.chats, chat.sessionID)
	s.releaseUnlocked(chat, reason)
}

func (s *Service) releaseUnlocked(chat *activeChat, reason string) {
	if chat.staffID != "" {
		s.directory.DecrementLoad(chat.staffID)
	}
	metrics.Get().RecordChatEnded()

	now := s.Now()
	dateKey := now.UTC().Format("2006-01-02")

	engagement := types.EngagementRecord{
		DateKey:        dateKey,
		SessionID:      chat.sessionID,
		StartTime:      chat.startedAt.UnixMilli(),
		EndTime:        now.UnixMilli(),
		PagesVisited:   chat.summary.PagesVisited,
		TotalTimeSpent: chat.summary.TotalTimeSpent * 1000,
		Departments:    chat.summary.DepartmentsViewed,
		Score:          chat.summary.BehaviorScore,
		Level:          chat.summary.EngagementLevel,
	}
	if err := s.store.SaveEngagementRecord(engagement); err != nil {
		s.logger.Error().Err(err).Str("session_id", chat.sessionID).Msg("failed to save engagement record")
	}

	if chat.staffID != "" {
		release := now
		assignment := types.AssignmentRecord{
			DateKey:        dateKey,
			ChatID:         chat.chatID,
			SessionID:      chat.sessionID,
			StaffID:        chat.staffID,
			Specialization: chat.specialization,
			AssignTime:     chat.startedAt,
			ReleaseTime:    &release,
			Messages:       chat.messages,
		}
		if err := s.store.SaveAssignmentRecord(assignment); err != nil {
			s.logger.Error().Err(err).Str("chat_id", chat.chatID).Msg("failed to save assignment record")
		}
	}

	s.logger.Info().
		Str("session_id", chat.sessionID).
		Str("chat_id", chat.chatID).
		Str("reason", reason).
		Int("messages", chat.messages).
		Msg("chat ended")
}

// specializationFor maps the visitor's most-visited department page to a
// specialization from the catalog. Department page IDs are matched
// case-insensitively; unknown departments route as themselves so the
// resolver's General wildcard can still pick them up.
func specializationFor(topDepartments []string) string {
	if len(topDepartments) == 0 {
		return ""
	}
	top := topDepartments[0]
	for _, spec := range types.AllSpecializations {
		if strings.EqualFold(top, spec) {
			return spec
		}
	}
	return top
}

// containsContactDetails reports whether the message carries an email address
// or a phone number with at least seven digits
func containsContactDetails(message string) bool {
	if at := strings.Index(message, "@"); at > 0 {
		rest := message[at+1:]
		if dot := strings.Index(rest, "."); dot > 0 && dot < len(rest)-1 {
			return true
		}
	}

	digits := 0
	for _, r := range message {
		if r >= '0' && r <= '9' {
			digits++
			if digits >= 7 {
				return true
			}
		} else if r != ' ' && r != '-' && r != '+' && r != '(' && r != ')' && r != '/' {
			digits = 0
		}
	}
	return false
}
