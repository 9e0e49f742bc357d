// Package billing provides billing value types.
package billing

import "time"

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
)

// Active reports whether the status entitles the user to the paid plan.
func (s SubscriptionStatus) Active() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription records a payment-provider subscription for a user.
type Subscription struct {
	ID          string
	UserID      string
	PlanID      string
	Provider    string // "lemonsqueezy" or "stripe"
	ProviderID  string // the provider's subscription identifier
	Status      SubscriptionStatus
	RenewsAt    *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
