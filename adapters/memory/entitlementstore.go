// Package memory provides in-memory store implementations for tests
// and single-process development deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatgate/chatgate/domain/meter"
	"github.com/chatgate/chatgate/ports"
)

// EntitlementStore is a thread-safe in-memory implementation of
// ports.EntitlementStore.
type EntitlementStore struct {
	mu    sync.RWMutex
	plans map[string]string
	usage map[string]meter.UsageRecord
}

// NewEntitlementStore creates an empty in-memory entitlement store.
func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		plans: make(map[string]string),
		usage: make(map[string]meter.UsageRecord),
	}
}

// GetUserPlan retrieves the user's plan assignment.
func (s *EntitlementStore) GetUserPlan(ctx context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	planID, ok := s.plans[userID]
	return planID, ok, nil
}

// SetUserPlan assigns a plan to a user.
func (s *EntitlementStore) SetUserPlan(ctx context.Context, userID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[userID] = planID
	return nil
}

// GetUsageRecord retrieves the user's usage record.
func (s *EntitlementStore) GetUsageRecord(ctx context.Context, userID string) (meter.UsageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.usage[userID]
	return rec, ok, nil
}

// CreateUsageRecord creates the user's usage record.
func (s *EntitlementStore) CreateUsageRecord(ctx context.Context, userID string, count int64, periodStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[userID] = meter.UsageRecord{
		UserID:      userID,
		Count:       count,
		PeriodStart: periodStart,
	}
	return nil
}

// ResetUsageRecord zeroes the count and advances the period start.
func (s *EntitlementStore) ResetUsageRecord(ctx context.Context, userID string, periodStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[userID] = meter.UsageRecord{
		UserID:      userID,
		Count:       0,
		PeriodStart: periodStart,
	}
	return nil
}

// IncrementUsageRecord adds one to the stored count.
// The increment happens under the store lock, matching the atomicity
// the SQLite implementation gets from a single UPDATE.
func (s *EntitlementStore) IncrementUsageRecord(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.usage[userID]
	rec.UserID = userID
	rec.Count++
	s.usage[userID] = rec
	return nil
}

// Clear removes all state (for testing).
func (s *EntitlementStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]string)
	s.usage = make(map[string]meter.UsageRecord)
}

// Ensure interface compliance.
var _ ports.EntitlementStore = (*EntitlementStore)(nil)
