package payment

import (
	"context"
	"errors"

	"github.com/chatgate/chatgate/ports"
)

// ErrPaymentsDisabled is returned when payments are not configured.
var ErrPaymentsDisabled = errors.New("payments are not configured")

// NoopProvider is a no-op payment provider for when payments are disabled.
type NoopProvider struct{}

// NewNoopProvider creates a new no-op payment provider.
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

// Name returns the provider name.
func (p *NoopProvider) Name() string {
	return "none"
}

// CreateCheckout returns an error as payments are disabled.
func (p *NoopProvider) CreateCheckout(ctx context.Context, params ports.CheckoutParams) (string, error) {
	return "", ErrPaymentsDisabled
}

// ParseWebhook returns an error as payments are disabled.
func (p *NoopProvider) ParseWebhook(payload []byte, signature string) (ports.SubscriptionEvent, error) {
	return ports.SubscriptionEvent{}, ErrPaymentsDisabled
}

var _ ports.PaymentProvider = (*NoopProvider)(nil)
