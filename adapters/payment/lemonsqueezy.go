// Package payment provides payment provider adapters.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatgate/chatgate/domain/billing"
	"github.com/chatgate/chatgate/ports"
)

// LemonSqueezyConfig holds LemonSqueezy configuration.
type LemonSqueezyConfig struct {
	APIKey        string
	StoreID       string
	WebhookSecret string
}

// LemonSqueezyProvider implements ports.PaymentProvider for LemonSqueezy.
type LemonSqueezyProvider struct {
	config     LemonSqueezyConfig
	httpClient *http.Client
	baseURL    string
}

// NewLemonSqueezyProvider creates a new LemonSqueezy payment provider.
func NewLemonSqueezyProvider(config LemonSqueezyConfig) *LemonSqueezyProvider {
	return &LemonSqueezyProvider{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.lemonsqueezy.com/v1",
	}
}

// Name returns the provider name.
func (p *LemonSqueezyProvider) Name() string {
	return "lemonsqueezy"
}

// CreateCheckout creates a LemonSqueezy checkout. The user ID and plan
// travel in checkout custom data and come back on webhook events.
func (p *LemonSqueezyProvider) CreateCheckout(ctx context.Context, params ports.CheckoutParams) (string, error) {
	if params.PriceID == "" {
		return "", errors.New("variant id is required")
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type": "checkouts",
			"attributes": map[string]interface{}{
				"checkout_data": map[string]interface{}{
					"email": params.Email,
					"custom": map[string]string{
						"user_id": params.UserID,
						"plan":    params.PlanID,
					},
				},
				"product_options": map[string]interface{}{
					"redirect_url": params.SuccessURL,
				},
			},
			"relationships": map[string]interface{}{
				"store": map[string]interface{}{
					"data": map[string]interface{}{
						"type": "stores",
						"id":   p.config.StoreID,
					},
				},
				"variant": map[string]interface{}{
					"data": map[string]interface{}{
						"type": "variants",
						"id":   params.PriceID,
					},
				},
			},
		},
	}

	resp, err := p.doRequest(ctx, "POST", "/checkouts", payload)
	if err != nil {
		return "", err
	}

	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("invalid response format")
	}
	attrs, ok := data["attributes"].(map[string]interface{})
	if !ok {
		return "", errors.New("invalid response format")
	}
	if url, ok := attrs["url"].(string); ok {
		return url, nil
	}
	return "", errors.New("failed to create checkout")
}

// ParseWebhook verifies the X-Signature HMAC and normalizes the event.
func (p *LemonSqueezyProvider) ParseWebhook(payload []byte, signature string) (ports.SubscriptionEvent, error) {
	mac := hmac.New(sha256.New, []byte(p.config.WebhookSecret))
	mac.Write(payload)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expectedSig)) {
		return ports.SubscriptionEvent{}, errors.New("invalid webhook signature")
	}

	var body struct {
		Meta struct {
			EventName  string `json:"event_name"`
			CustomData struct {
				UserID string `json:"user_id"`
				Plan   string `json:"plan"`
			} `json:"custom_data"`
		} `json:"meta"`
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Status   string `json:"status"`
				RenewsAt string `json:"renews_at"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ports.SubscriptionEvent{}, fmt.Errorf("parse webhook: %w", err)
	}

	evt := ports.SubscriptionEvent{
		RawType:        body.Meta.EventName,
		UserID:         body.Meta.CustomData.UserID,
		PlanID:         body.Meta.CustomData.Plan,
		SubscriptionID: body.Data.ID,
		Status:         mapLemonStatus(body.Data.Attributes.Status),
	}

	if body.Data.Attributes.RenewsAt != "" {
		if t, err := time.Parse(time.RFC3339, body.Data.Attributes.RenewsAt); err == nil {
			evt.RenewsAt = &t
		}
	}

	switch body.Meta.EventName {
	case "subscription_created", "subscription_updated", "subscription_resumed", "subscription_unpaused":
		evt.Kind = ports.EventSubscriptionActivated
	case "subscription_cancelled", "subscription_expired", "subscription_paused":
		evt.Kind = ports.EventSubscriptionEnded
	case "subscription_payment_success":
		evt.Kind = ports.EventPaymentSucceeded
	case "subscription_payment_failed":
		evt.Kind = ports.EventPaymentFailed
	default:
		evt.Kind = ports.EventIgnored
	}

	return evt, nil
}

func (p *LemonSqueezyProvider) doRequest(ctx context.Context, method, endpoint string, payload map[string]interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("LemonSqueezy API error: %s", string(respBody))
	}

	if resp.StatusCode == 204 {
		return nil, nil // No content
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func mapLemonStatus(status string) billing.SubscriptionStatus {
	switch status {
	case "active":
		return billing.SubscriptionStatusActive
	case "past_due":
		return billing.SubscriptionStatusPastDue
	case "cancelled":
		return billing.SubscriptionStatusCancelled
	case "expired":
		return billing.SubscriptionStatusExpired
	case "paused":
		return billing.SubscriptionStatusPaused
	case "on_trial":
		return billing.SubscriptionStatusTrialing
	default:
		return billing.SubscriptionStatusActive
	}
}

// Ensure interface compliance.
var _ ports.PaymentProvider = (*LemonSqueezyProvider)(nil)
