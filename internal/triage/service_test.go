package triage

import (
	"sync"
	"testing"
	"time"

	"github.com/carebridge/intake/internal/routing"
	"github.com/carebridge/intake/internal/types"
	"github.com/rs/zerolog"
)

// memStore captures persisted records for assertions
type memStore struct {
	mu          sync.Mutex
	engagements []types.EngagementRecord
	assignments []types.AssignmentRecord
}

func (m *memStore) SaveEngagementRecord(r types.EngagementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements = append(m.engagements, r)
	return nil
}

func (m *memStore) SaveAssignmentRecord(r types.AssignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, r)
	return nil
}

func (m *memStore) GetEngagementRecords(dateKey string) ([]types.EngagementRecord, error) {
	return nil, nil
}

func (m *memStore) GetAssignmentRecords(dateKey string) ([]types.AssignmentRecord, error) {
	return nil, nil
}

func (m *memStore) GetStaffAssignments(staffID, dateKey string) ([]types.AssignmentRecord, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *routing.Directory, *memStore) {
	t.Helper()
	dir := routing.NewDirectory(zerolog.Nop())
	dir.Upsert(types.StaffMember{
		ID: "admin-1", Name: "Dr. Weber", Role: types.RoleAdmin,
		Active: true, Specialization: types.SpecGeneral,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	dir.Upsert(types.StaffMember{
		ID: "card-1", Name: "Dr. Brandt", Role: types.RoleSpecialist,
		Active: true, Specialization: types.SpecCardiology, MaxLoad: 3,
		CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	store := &memStore{}
	svc := New(dir, store, zerolog.Nop())
	svc.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, dir, store
}

func chatStart(sessionID string, topDepartments []string) types.ChatStartMsg {
	return types.ChatStartMsg{
		BehaviorData: types.BehaviorSummary{
			SessionID:       sessionID,
			PagesVisited:    4,
			TopDepartments:  topDepartments,
			BehaviorScore:   62,
			EngagementLevel: types.EngagementMedium,
		},
	}
}

func TestStartChatAssignsSpecialist(t *testing.T) {
	svc, dir, _ := newTestService(t)

	started := svc.StartChat(chatStart("sess-1", []string{"cardiology"}))

	if started.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %s", started.SessionID)
	}
	member, _ := dir.Get("card-1")
	if member.CurrentLoad != 1 {
		t.Errorf("expected load 1 on card-1, got %d", member.CurrentLoad)
	}
	if svc.ActiveChats() != 1 {
		t.Errorf("expected 1 active chat, got %d", svc.ActiveChats())
	}
}

func TestStartChatWithoutDepartmentsUsesDefault(t *testing.T) {
	svc, dir, _ := newTestService(t)

	svc.StartChat(chatStart("sess-1", nil))

	admin, _ := dir.Get("admin-1")
	if admin.CurrentLoad != 1 {
		t.Errorf("expected default chain to assign admin, load %d", admin.CurrentLoad)
	}
}

func TestStartChatAssignsSessionIDWhenMissing(t *testing.T) {
	svc, _, _ := newTestService(t)

	started := svc.StartChat(chatStart("", nil))
	if started.SessionID == "" {
		t.Error("expected a generated session ID")
	}
}

func TestHandleMessageWithoutChat(t *testing.T) {
	svc, _, _ := newTestService(t)

	reply, processed := svc.HandleMessage(types.UserMessageMsg{SessionID: "unknown", Message: "hello"})
	if reply.IsPatientComplete {
		t.Error("expected incomplete reply for unknown session")
	}
	if processed != nil {
		t.Error("expected no processed notification for unknown session")
	}
}

func TestHandleMessageDetectsContactDetails(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		complete bool
	}{
		{"email", "you can reach me at jane.doe@example.com", true},
		{"phone", "call me at 030 1234567", true},
		{"phone with dashes", "my number is 0171-555-0134", true},
		{"plain text", "I have back pain since monday", false},
		{"short number", "I am 42 years old", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			svc.StartChat(chatStart("sess-1", nil))

			reply, processed := svc.HandleMessage(types.UserMessageMsg{SessionID: "sess-1", Message: tt.message})
			if reply.IsPatientComplete != tt.complete {
				t.Errorf("message %q: expected complete=%v, got %v", tt.message, tt.complete, reply.IsPatientComplete)
			}
			if tt.complete && processed == nil {
				t.Error("expected patientProcessed notification on completion")
			}
			if !tt.complete && processed != nil {
				t.Error("expected no patientProcessed notification")
			}
		})
	}
}

func TestPatientProcessedSentOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.StartChat(chatStart("sess-1", nil))

	_, first := svc.HandleMessage(types.UserMessageMsg{SessionID: "sess-1", Message: "jane@example.com"})
	if first == nil {
		t.Fatal("expected processed notification on first completion")
	}

	reply, second := svc.HandleMessage(types.UserMessageMsg{SessionID: "sess-1", Message: "thanks"})
	if second != nil {
		t.Error("expected processed notification only once")
	}
	if !reply.IsPatientComplete {
		t.Error("expected completion flag to stick on later replies")
	}
}

func TestEndChatReleasesAndPersists(t *testing.T) {
	svc, dir, store := newTestService(t)
	svc.StartChat(chatStart("sess-1", []string{"cardiology"}))
	svc.HandleMessage(types.UserMessageMsg{SessionID: "sess-1", Message: "hello"})

	ended := svc.EndChat(types.ChatEndMsg{SessionID: "sess-1", Reason: "user_ended"})
	if ended.SessionID != "sess-1" {
		t.Errorf("unexpected session in chatEnded: %s", ended.SessionID)
	}

	member, _ := dir.Get("card-1")
	if member.CurrentLoad != 0 {
		t.Errorf("expected load released, got %d", member.CurrentLoad)
	}
	if svc.ActiveChats() != 0 {
		t.Errorf("expected 0 active chats, got %d", svc.ActiveChats())
	}

	if len(store.engagements) != 1 {
		t.Fatalf("expected 1 engagement record, got %d", len(store.engagements))
	}
	if store.engagements[0].DateKey != "2025-06-01" {
		t.Errorf("unexpected date key %s", store.engagements[0].DateKey)
	}
	if store.engagements[0].Score != 62 {
		t.Errorf("expected persisted score 62, got %d", store.engagements[0].Score)
	}

	if len(store.assignments) != 1 {
		t.Fatalf("expected 1 assignment record, got %d", len(store.assignments))
	}
	if store.assignments[0].StaffID != "card-1" {
		t.Errorf("expected assignment to card-1, got %s", store.assignments[0].StaffID)
	}
	if store.assignments[0].Messages != 1 {
		t.Errorf("expected 1 message counted, got %d", store.assignments[0].Messages)
	}
}

func TestEndChatUnknownSessionIsNoop(t *testing.T) {
	svc, _, store := newTestService(t)

	svc.EndChat(types.ChatEndMsg{SessionID: "ghost"})
	if len(store.engagements) != 0 {
		t.Errorf("expected no records for unknown session, got %d", len(store.engagements))
	}
}

func TestDisconnectReleasesAssignment(t *testing.T) {
	svc, dir, store := newTestService(t)
	svc.StartChat(chatStart("sess-1", []string{"cardiology"}))

	svc.Disconnect("sess-1")

	member, _ := dir.Get("card-1")
	if member.CurrentLoad != 0 {
		t.Errorf("expected load released on disconnect, got %d", member.CurrentLoad)
	}
	if len(store.engagements) != 1 {
		t.Errorf("expected engagement persisted on disconnect, got %d", len(store.engagements))
	}
}

func TestRepeatedChatStartReplacesOldChat(t *testing.T) {
	svc, dir, _ := newTestService(t)
	svc.StartChat(chatStart("sess-1", []string{"cardiology"}))
	svc.StartChat(chatStart("sess-1", []string{"cardiology"}))

	member, _ := dir.Get("card-1")
	if member.CurrentLoad != 1 {
		t.Errorf("expected exactly one live assignment after restart, got load %d", member.CurrentLoad)
	}
	if svc.ActiveChats() != 1 {
		t.Errorf("expected 1 active chat, got %d", svc.ActiveChats())
	}
}

func TestSpecializationForMapping(t *testing.T) {
	tests := []struct {
		departments []string
		want        string
	}{
		{nil, ""},
		{[]string{"cardiology"}, types.SpecCardiology},
		{[]string{"Dental", "cardiology"}, types.SpecDental},
		{[]string{"oncology"}, "oncology"},
	}

	for _, tt := range tests {
		if got := specializationFor(tt.departments); got != tt.want {
			t.Errorf("specializationFor(%v) = %q, want %q", tt.departments, got, tt.want)
		}
	}
}
