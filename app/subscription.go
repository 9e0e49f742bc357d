package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/adapters/metrics"
	"github.com/chatgate/chatgate/domain/billing"
	"github.com/chatgate/chatgate/domain/plan"
	"github.com/chatgate/chatgate/ports"
)

// ErrNoPriceForPlan is returned when checkout is requested for a plan
// that has no price configured with the active payment provider.
var ErrNoPriceForPlan = errors.New("no price configured for plan")

// SubscriptionService applies payment provider events to user plans and
// creates checkout sessions.
type SubscriptionService struct {
	entitlements ports.EntitlementStore
	subs         ports.SubscriptionStore
	provider     ports.PaymentProvider
	metrics      *metrics.Collector
	clock        ports.Clock
	log          zerolog.Logger

	dynamicCfg atomic.Pointer[CheckoutConfig]
}

// CheckoutConfig contains hot-reloadable checkout configuration.
type CheckoutConfig struct {
	// Prices maps plan ID to the provider price or variant ID.
	Prices     map[string]string
	SuccessURL string
	CancelURL  string
}

// SubscriptionDeps contains dependencies for SubscriptionService.
type SubscriptionDeps struct {
	Entitlements ports.EntitlementStore
	Subs         ports.SubscriptionStore
	Provider     ports.PaymentProvider
	Metrics      *metrics.Collector
	Clock        ports.Clock
	Log          zerolog.Logger
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(deps SubscriptionDeps, cfg CheckoutConfig) *SubscriptionService {
	s := &SubscriptionService{
		entitlements: deps.Entitlements,
		subs:         deps.Subs,
		provider:     deps.Provider,
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		log:          deps.Log,
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig updates the hot-reloadable checkout configuration.
func (s *SubscriptionService) UpdateConfig(cfg CheckoutConfig) {
	s.dynamicCfg.Store(&cfg)
}

// CreateCheckout creates a checkout session URL for the given plan.
func (s *SubscriptionService) CreateCheckout(ctx context.Context, identity ports.Identity, planID string) (string, error) {
	cfg := s.dynamicCfg.Load()

	priceID, ok := cfg.Prices[planID]
	if !ok || priceID == "" {
		return "", fmt.Errorf("%w: %q", ErrNoPriceForPlan, planID)
	}

	url, err := s.provider.CreateCheckout(ctx, ports.CheckoutParams{
		UserID:     identity.UserID,
		Email:      identity.Email,
		PlanID:     planID,
		PriceID:    priceID,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}

	s.metrics.CheckoutsTotal.WithLabelValues(planID).Inc()
	s.log.Info().
		Str("user_id", identity.UserID).
		Str("plan", planID).
		Str("provider", s.provider.Name()).
		Msg("checkout session created")
	return url, nil
}

// HandleWebhook verifies and applies a payment provider webhook.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("parse webhook: %w", err)
	}
	return s.ApplyEvent(ctx, evt)
}

// ApplyEvent applies a normalized subscription event to stores.
func (s *SubscriptionService) ApplyEvent(ctx context.Context, evt ports.SubscriptionEvent) error {
	s.metrics.WebhookEventsTotal.WithLabelValues(s.provider.Name(), string(evt.Kind)).Inc()

	log := s.log.With().
		Str("event", evt.RawType).
		Str("subscription_id", evt.SubscriptionID).
		Logger()

	switch evt.Kind {
	case ports.EventSubscriptionActivated:
		userID, planID, err := s.resolveUser(ctx, evt)
		if err != nil {
			return err
		}
		if err := s.entitlements.SetUserPlan(ctx, userID, planID); err != nil {
			return fmt.Errorf("set user plan: %w", err)
		}
		if err := s.upsert(ctx, evt, userID, planID); err != nil {
			return err
		}
		log.Info().Str("user_id", userID).Str("plan", planID).Msg("subscription activated")

	case ports.EventSubscriptionEnded:
		userID, _, err := s.resolveUser(ctx, evt)
		if err != nil {
			return err
		}
		if err := s.entitlements.SetUserPlan(ctx, userID, plan.Free); err != nil {
			return fmt.Errorf("set user plan: %w", err)
		}
		status := evt.Status
		if status == "" {
			status = billing.SubscriptionStatusCancelled
		}
		if err := s.subs.UpdateStatus(ctx, evt.SubscriptionID, status, s.clock.Now()); err != nil {
			return fmt.Errorf("update subscription status: %w", err)
		}
		log.Info().Str("user_id", userID).Msg("subscription ended, reverted to free plan")

	case ports.EventPaymentSucceeded:
		log.Info().Msg("subscription payment succeeded")

	case ports.EventPaymentFailed:
		log.Warn().Msg("subscription payment failed")

	default:
		log.Debug().Msg("ignoring webhook event")
	}

	return nil
}

// resolveUser returns the user and plan for an event, falling back to
// the stored subscription when the event carries no custom data.
func (s *SubscriptionService) resolveUser(ctx context.Context, evt ports.SubscriptionEvent) (userID, planID string, err error) {
	userID, planID = evt.UserID, evt.PlanID
	if userID != "" && planID != "" {
		return userID, planID, nil
	}

	sub, err := s.subs.GetByProviderID(ctx, evt.SubscriptionID)
	if err != nil {
		return "", "", fmt.Errorf("webhook event %q has no user mapping: %w", evt.RawType, err)
	}
	if userID == "" {
		userID = sub.UserID
	}
	if planID == "" {
		planID = sub.PlanID
	}
	return userID, planID, nil
}

func (s *SubscriptionService) upsert(ctx context.Context, evt ports.SubscriptionEvent, userID, planID string) error {
	now := s.clock.Now()
	status := evt.Status
	if status == "" {
		status = billing.SubscriptionStatusActive
	}
	sub := billing.Subscription{
		ID:         evt.SubscriptionID,
		UserID:     userID,
		PlanID:     planID,
		Provider:   s.provider.Name(),
		ProviderID: evt.SubscriptionID,
		Status:     status,
		RenewsAt:   evt.RenewsAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}
