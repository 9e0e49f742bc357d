// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/chatgate/chatgate/domain/billing"
	"github.com/chatgate/chatgate/domain/chat"
	"github.com/chatgate/chatgate/domain/meter"
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// EntitlementStore persists per-user plan assignments and usage records.
// It is the only shared mutable resource in the metering core.
type EntitlementStore interface {
	// GetUserPlan retrieves the user's plan assignment.
	// ok is false when no assignment exists (callers default to FREE).
	GetUserPlan(ctx context.Context, userID string) (planID string, ok bool, err error)

	// SetUserPlan assigns a plan to a user. Invoked by the subscription
	// lifecycle handler and admin tooling, never by the metering core.
	SetUserPlan(ctx context.Context, userID, planID string) error

	// GetUsageRecord retrieves the user's usage record.
	// ok is false when no record exists yet (first use, not an error).
	GetUsageRecord(ctx context.Context, userID string) (rec meter.UsageRecord, ok bool, err error)

	// CreateUsageRecord creates the user's usage record.
	CreateUsageRecord(ctx context.Context, userID string, count int64, periodStart time.Time) error

	// ResetUsageRecord zeroes the count and advances the period start.
	ResetUsageRecord(ctx context.Context, userID string, periodStart time.Time) error

	// IncrementUsageRecord adds one to the stored count. Implementations
	// must perform a single atomic increment, not read-modify-write.
	IncrementUsageRecord(ctx context.Context, userID string) error
}

// User represents a user account.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte // bcrypt
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore persists user accounts.
type UserStore interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (User, error)

	// Create stores a new user.
	Create(ctx context.Context, u User) error

	// Update modifies an existing user.
	Update(ctx context.Context, u User) error

	// List returns users with pagination.
	List(ctx context.Context, limit, offset int) ([]User, error)
}

// SubscriptionStore persists billing subscriptions.
type SubscriptionStore interface {
	// GetByProviderID retrieves a subscription by the provider's identifier.
	GetByProviderID(ctx context.Context, providerID string) (billing.Subscription, error)

	// GetByUser retrieves the latest subscription for a user.
	GetByUser(ctx context.Context, userID string) (billing.Subscription, error)

	// Upsert creates or replaces a subscription keyed by provider ID.
	Upsert(ctx context.Context, sub billing.Subscription) error

	// UpdateStatus changes the status of a subscription by provider ID.
	UpdateStatus(ctx context.Context, providerID string, status billing.SubscriptionStatus, at time.Time) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// CompletionProvider produces chat completions from an upstream model API.
type CompletionProvider interface {
	// Complete sends a chat request upstream and returns the response.
	Complete(ctx context.Context, req chat.Request) (chat.Response, error)
}

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	UserID     string
	Email      string
	PlanID     string
	PriceID    string // provider-specific variant/price identifier
	SuccessURL string
	CancelURL  string
}

// SubscriptionEventKind classifies normalized webhook events.
type SubscriptionEventKind string

const (
	// EventSubscriptionActivated covers created/updated/resumed/unpaused.
	EventSubscriptionActivated SubscriptionEventKind = "subscription_activated"
	// EventSubscriptionEnded covers cancelled/expired/paused.
	EventSubscriptionEnded SubscriptionEventKind = "subscription_ended"
	// EventPaymentSucceeded is a successful recurring payment.
	EventPaymentSucceeded SubscriptionEventKind = "payment_succeeded"
	// EventPaymentFailed is a failed recurring payment.
	EventPaymentFailed SubscriptionEventKind = "payment_failed"
	// EventIgnored is an event this system does not act on.
	EventIgnored SubscriptionEventKind = "ignored"
)

// SubscriptionEvent is a payment-provider webhook normalized to the
// fields the subscription lifecycle service acts on.
type SubscriptionEvent struct {
	Kind           SubscriptionEventKind
	RawType        string // the provider's event name
	UserID         string
	PlanID         string
	SubscriptionID string // the provider's subscription identifier
	Status         billing.SubscriptionStatus
	RenewsAt       *time.Time
}

// PaymentProvider interfaces with a payment processor.
type PaymentProvider interface {
	// Name returns the provider name (e.g., "lemonsqueezy", "stripe").
	Name() string

	// CreateCheckout creates a hosted checkout session and returns its URL.
	CreateCheckout(ctx context.Context, params CheckoutParams) (checkoutURL string, err error)

	// ParseWebhook verifies the signature and normalizes the event.
	ParseWebhook(payload []byte, signature string) (SubscriptionEvent, error)
}

// -----------------------------------------------------------------------------
// Identity Ports
// -----------------------------------------------------------------------------

// Identity is the authenticated caller the request gate consumes.
type Identity struct {
	UserID string
	Email  string
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	// Issue creates a signed token for the identity.
	Issue(id Identity) (string, error)

	// Verify validates a token and returns the identity it carries.
	Verify(token string) (Identity, error)
}
