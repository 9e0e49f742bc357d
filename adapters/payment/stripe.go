package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chatgate/chatgate/domain/billing"
	"github.com/chatgate/chatgate/ports"
	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeProvider implements ports.PaymentProvider for Stripe.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider creates a new Stripe payment provider.
func NewStripeProvider(config StripeConfig) *StripeProvider {
	stripe.Key = config.SecretKey
	return &StripeProvider{config: config}
}

// Name returns the provider name.
func (p *StripeProvider) Name() string {
	return "stripe"
}

// CreateCheckout creates a Stripe Checkout session in subscription mode.
// The user ID and plan are attached as subscription metadata so webhook
// events can be mapped back without a separate customer lookup.
func (p *StripeProvider) CreateCheckout(ctx context.Context, params ports.CheckoutParams) (string, error) {
	if params.PriceID == "" {
		return "", errors.New("price id is required")
	}

	sessionParams := &stripe.CheckoutSessionParams{
		CustomerEmail: stripe.String(params.Email),
		SuccessURL:    stripe.String(params.SuccessURL),
		CancelURL:     stripe.String(params.CancelURL),
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": params.UserID,
				"plan":    params.PlanID,
			},
		},
	}

	s, err := checkoutsession.New(sessionParams)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

// ParseWebhook validates the Stripe-Signature header and normalizes
// subscription lifecycle events.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (ports.SubscriptionEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret)
	if err != nil {
		return ports.SubscriptionEvent{}, err
	}

	evt := ports.SubscriptionEvent{RawType: string(event.Type)}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ports.SubscriptionEvent{}, err
		}
		evt.UserID = sub.Metadata["user_id"]
		evt.PlanID = sub.Metadata["plan"]
		evt.SubscriptionID = sub.ID
		evt.Status = mapStripeStatus(sub.Status)
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0)
			evt.RenewsAt = &t
		}
		if event.Type == "customer.subscription.deleted" || !evt.Status.Active() {
			evt.Kind = ports.EventSubscriptionEnded
		} else {
			evt.Kind = ports.EventSubscriptionActivated
		}
	case "invoice.payment_succeeded":
		evt.Kind = ports.EventPaymentSucceeded
	case "invoice.payment_failed":
		evt.Kind = ports.EventPaymentFailed
	default:
		evt.Kind = ports.EventIgnored
	}

	return evt, nil
}

func mapStripeStatus(status stripe.SubscriptionStatus) billing.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return billing.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return billing.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return billing.SubscriptionStatusCancelled
	case stripe.SubscriptionStatusTrialing:
		return billing.SubscriptionStatusTrialing
	default:
		return billing.SubscriptionStatusActive
	}
}

var _ ports.PaymentProvider = (*StripeProvider)(nil)
