// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chatgate/chatgate/domain/meter"
	"github.com/chatgate/chatgate/domain/plan"
	"github.com/chatgate/chatgate/ports"
)

// ErrStoreUnavailable is returned when the entitlement store cannot be
// reached. Callers must surface it rather than fall back to allowing
// the request.
var ErrStoreUnavailable = errors.New("entitlement store unavailable")

// MeterService decides whether a user may send another message and
// records usage after a message succeeds.
type MeterService struct {
	store ports.EntitlementStore
	clock ports.Clock

	// Dynamic configuration (hot-reloadable)
	dynamicCfg atomic.Pointer[MeterConfig]

	// Per-user locks bound the window where two concurrent requests
	// for the same user both see a stale usage record.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// MeterConfig contains hot-reloadable metering configuration.
type MeterConfig struct {
	Registry   *plan.Registry
	OwnerEmail string
}

// NewMeterService creates a new metering service.
func NewMeterService(store ports.EntitlementStore, clock ports.Clock, cfg MeterConfig) *MeterService {
	s := &MeterService{
		store:     store,
		clock:     clock,
		userLocks: make(map[string]*sync.Mutex),
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig updates the hot-reloadable configuration.
// This is thread-safe and can be called while handling requests.
func (s *MeterService) UpdateConfig(cfg MeterConfig) {
	s.dynamicCfg.Store(&cfg)
}

func (s *MeterService) getConfig() *MeterConfig {
	return s.dynamicCfg.Load()
}

func (s *MeterService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// Evaluate decides whether the identified user may send one more message.
// It is read-only: calling it repeatedly without an intervening
// RecordUsage returns the same decision.
func (s *MeterService) Evaluate(ctx context.Context, identity ports.Identity) (meter.Decision, error) {
	cfg := s.getConfig()

	// Owner bypass happens before any store access so that the owner
	// can still use the system when the store is down.
	if cfg.OwnerEmail != "" && identity.Email == cfg.OwnerEmail {
		return meter.AllowUnlimited(plan.Team, true), nil
	}

	lock := s.userLock(identity.UserID)
	lock.Lock()
	defer lock.Unlock()

	planID, ok, err := s.store.GetUserPlan(ctx, identity.UserID)
	if err != nil {
		return meter.Decision{}, fmt.Errorf("%w: get user plan: %v", ErrStoreUnavailable, err)
	}
	if !ok || planID == "" {
		planID = plan.Free
	}

	p, err := cfg.Registry.Lookup(planID)
	if err != nil {
		// Unknown stored plan fails closed.
		return meter.Decision{}, err
	}

	if p.IsUnlimited() {
		return meter.AllowUnlimited(p.ID, false), nil
	}

	now := s.clock.Now()
	periodStart := meter.PeriodStart(now)

	rec, found, err := s.store.GetUsageRecord(ctx, identity.UserID)
	if err != nil {
		return meter.Decision{}, fmt.Errorf("%w: get usage record: %v", ErrStoreUnavailable, err)
	}

	if !found {
		if err := s.store.CreateUsageRecord(ctx, identity.UserID, 0, periodStart); err != nil {
			return meter.Decision{}, fmt.Errorf("%w: create usage record: %v", ErrStoreUnavailable, err)
		}
		return meter.Allow(p.ID, p.MessagesPerMonth, 0), nil
	}

	if meter.NeedsReset(rec.PeriodStart, now) {
		if err := s.store.ResetUsageRecord(ctx, identity.UserID, periodStart); err != nil {
			return meter.Decision{}, fmt.Errorf("%w: reset usage record: %v", ErrStoreUnavailable, err)
		}
		return meter.Allow(p.ID, p.MessagesPerMonth, 0), nil
	}

	if rec.Count >= p.MessagesPerMonth {
		return meter.Deny(p.ID, p.MessagesPerMonth), nil
	}

	return meter.Allow(p.ID, p.MessagesPerMonth, rec.Count), nil
}

// RecordUsage charges one message against the user's current period.
// Owner usage is never recorded. Callers invoke this only after the
// downstream completion succeeded, so a failed completion costs nothing.
func (s *MeterService) RecordUsage(ctx context.Context, identity ports.Identity) error {
	cfg := s.getConfig()

	if cfg.OwnerEmail != "" && identity.Email == cfg.OwnerEmail {
		return nil
	}

	if err := s.store.IncrementUsageRecord(ctx, identity.UserID); err != nil {
		return fmt.Errorf("%w: increment usage record: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PlanFor returns the effective plan for the identity, applying the
// owner bypass and the FREE default.
func (s *MeterService) PlanFor(ctx context.Context, identity ports.Identity) (plan.Plan, error) {
	cfg := s.getConfig()

	if cfg.OwnerEmail != "" && identity.Email == cfg.OwnerEmail {
		return cfg.Registry.Lookup(plan.Team)
	}

	planID, ok, err := s.store.GetUserPlan(ctx, identity.UserID)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("%w: get user plan: %v", ErrStoreUnavailable, err)
	}
	if !ok || planID == "" {
		planID = plan.Free
	}
	return cfg.Registry.Lookup(planID)
}

// Registry returns the current plan registry.
func (s *MeterService) Registry() *plan.Registry {
	return s.getConfig().Registry
}

// IsOwner reports whether the identity matches the configured owner email.
func (s *MeterService) IsOwner(identity ports.Identity) bool {
	cfg := s.getConfig()
	return cfg.OwnerEmail != "" && identity.Email == cfg.OwnerEmail
}
