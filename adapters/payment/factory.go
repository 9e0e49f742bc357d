package payment

import (
	"fmt"

	"github.com/chatgate/chatgate/config"
	"github.com/chatgate/chatgate/ports"
)

// NewProvider creates a payment provider based on billing configuration.
func NewProvider(cfg config.BillingConfig) (ports.PaymentProvider, error) {
	switch cfg.Provider {
	case "lemonsqueezy":
		if cfg.LemonSqueezy.APIKey == "" || cfg.LemonSqueezy.StoreID == "" {
			return nil, fmt.Errorf("lemonsqueezy API key and store ID are required")
		}
		return NewLemonSqueezyProvider(LemonSqueezyConfig{
			APIKey:        cfg.LemonSqueezy.APIKey,
			StoreID:       cfg.LemonSqueezy.StoreID,
			WebhookSecret: cfg.LemonSqueezy.WebhookSecret,
		}), nil

	case "stripe":
		if cfg.Stripe.SecretKey == "" {
			return nil, fmt.Errorf("stripe secret key is required")
		}
		return NewStripeProvider(StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		}), nil

	case "none", "":
		return NewNoopProvider(), nil

	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.Provider)
	}
}
