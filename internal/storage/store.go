package storage

import "github.com/carebridge/intake/internal/types"

// Store defines the persistence interface for finished engagements and
// routing assignments
type Store interface {
	SaveEngagementRecord(record types.EngagementRecord) error
	SaveAssignmentRecord(record types.AssignmentRecord) error
	GetEngagementRecords(dateKey string) ([]types.EngagementRecord, error)
	GetAssignmentRecords(dateKey string) ([]types.AssignmentRecord, error)
	GetStaffAssignments(staffID, dateKey string) ([]types.AssignmentRecord, error)
}

// NoopStore is a no-op implementation when persistence is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveEngagementRecord(_ types.EngagementRecord) error { return nil }
func (s *NoopStore) SaveAssignmentRecord(_ types.AssignmentRecord) error { return nil }
func (s *NoopStore) GetEngagementRecords(_ string) ([]types.EngagementRecord, error) {
	return nil, nil
}
func (s *NoopStore) GetAssignmentRecords(_ string) ([]types.AssignmentRecord, error) {
	return nil, nil
}
func (s *NoopStore) GetStaffAssignments(_, _ string) ([]types.AssignmentRecord, error) {
	return nil, nil
}
