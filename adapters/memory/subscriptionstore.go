package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatgate/chatgate/domain/billing"
	"github.com/chatgate/chatgate/ports"
)

// SubscriptionStore is an in-memory implementation of ports.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]billing.Subscription // by provider ID
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]billing.Subscription)}
}

// GetByProviderID retrieves a subscription by the provider's identifier.
func (s *SubscriptionStore) GetByProviderID(ctx context.Context, providerID string) (billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[providerID]
	if !ok {
		return billing.Subscription{}, ErrNotFound
	}
	return sub, nil
}

// GetByUser retrieves the latest subscription for a user.
func (s *SubscriptionStore) GetByUser(ctx context.Context, userID string) (billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest billing.Subscription
	found := false
	for _, sub := range s.subs {
		if sub.UserID != userID {
			continue
		}
		if !found || sub.UpdatedAt.After(latest.UpdatedAt) {
			latest = sub
			found = true
		}
	}
	if !found {
		return billing.Subscription{}, ErrNotFound
	}
	return latest, nil
}

// Upsert creates or replaces a subscription keyed by provider ID.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ProviderID] = sub
	return nil
}

// UpdateStatus changes the status of a subscription by provider ID.
func (s *SubscriptionStore) UpdateStatus(ctx context.Context, providerID string, status billing.SubscriptionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[providerID]
	if !ok {
		return ErrNotFound
	}
	sub.Status = status
	sub.UpdatedAt = at
	if status == billing.SubscriptionStatusCancelled {
		sub.CancelledAt = &at
	}
	s.subs[providerID] = sub
	return nil
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
