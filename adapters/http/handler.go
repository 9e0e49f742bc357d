// Package http provides the HTTP API for the chat gateway.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/adapters/metrics"
	"github.com/chatgate/chatgate/app"
	"github.com/chatgate/chatgate/domain/chat"
	"github.com/chatgate/chatgate/domain/meter"
	"github.com/chatgate/chatgate/domain/plan"
	"github.com/chatgate/chatgate/ports"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Handler bundles the services the HTTP API exposes.
type Handler struct {
	gate   *app.GateService
	meter  *app.MeterService
	subs   *app.SubscriptionService
	users  ports.UserStore
	tokens ports.TokenIssuer
	idGen  ports.IDGenerator
	clock  ports.Clock
	logger zerolog.Logger
}

// HandlerDeps contains dependencies for the HTTP handler.
type HandlerDeps struct {
	Gate   *app.GateService
	Meter  *app.MeterService
	Subs   *app.SubscriptionService
	Users  ports.UserStore
	Tokens ports.TokenIssuer
	IDGen  ports.IDGenerator
	Clock  ports.Clock
	Logger zerolog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		gate:   deps.Gate,
		meter:  deps.Meter,
		subs:   deps.Subs,
		users:  deps.Users,
		tokens: deps.Tokens,
		idGen:  deps.IDGen,
		clock:  deps.Clock,
		logger: deps.Logger,
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // mounted at /metrics when set
}

// NewRouter creates the main HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/health", h.Health)
	r.Get("/version", VersionHandler)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public API
	r.Post("/api/auth/signup", h.Signup)
	r.Post("/api/auth/login", h.Login)
	r.Get("/api/plans", h.ListPlans)

	// Webhooks are unauthenticated; signature verification happens inside
	// the payment provider adapter.
	r.Post("/webhooks/payment", h.PaymentWebhook)

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/api/chat", h.Chat)
		r.Get("/api/models", h.ListModels)
		r.Get("/api/me", h.Me)
		r.Post("/api/billing/checkout", h.CreateCheckout)
	})

	return r
}

// chatRequest is the inbound chat completion request body.
type chatRequest struct {
	Model       string         `json:"model,omitempty"`
	Messages    []chat.Message `json:"messages"`
	System      string         `json:"system,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

// chatResponse is the outbound chat completion response body.
type chatResponse struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        chat.Usage `json:"usage"`
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	req := chat.Request{
		Model:       body.Model,
		Messages:    body.Messages,
		System:      body.System,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
	}

	resp, result, err := h.gate.Complete(r.Context(), identity, req)
	if err != nil {
		h.writeGateError(w, err)
		return
	}

	setUsageHeaders(w, result)

	if !result.Allowed {
		switch result.DeniedReason {
		case meter.ReasonModelNotAllowed:
			writeError(w, http.StatusForbidden, meter.ReasonModelNotAllowed,
				"Your plan does not include this model. Upgrade to access it.")
		default:
			writeError(w, http.StatusTooManyRequests, meter.ReasonRateLimit,
				"Monthly message limit reached. Upgrade your plan for unlimited messages.")
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	})
}

func (h *Handler) writeGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrUnsupportedModel):
		writeError(w, http.StatusBadRequest, "unsupported_model", err.Error())
	case errors.Is(err, chat.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, plan.ErrUnknownPlan):
		writeError(w, http.StatusInternalServerError, "unknown_plan", "Account plan is not recognized")
	case errors.Is(err, app.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Temporarily unable to check usage. Try again shortly.")
	default:
		h.logger.Error().Err(err).Msg("chat request failed")
		writeError(w, http.StatusBadGateway, "upstream_error", "The model provider returned an error")
	}
}

// modelInfo describes one selectable model for the UI.
type modelInfo struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// ListModels handles GET /api/models. It reports which models the
// caller's plan can use so the UI can disable locked entries.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	isOwner := h.meter.IsOwner(identity)
	var planID string
	if isOwner {
		planID = plan.Team
	} else {
		p, err := h.meter.PlanFor(r.Context(), identity)
		if err != nil {
			h.writeGateError(w, err)
			return
		}
		planID = p.ID
	}

	registry := h.meter.Registry()
	models := make([]modelInfo, 0, len(chat.SupportedModels()))
	for _, id := range chat.SupportedModels() {
		models = append(models, modelInfo{
			ID:        id,
			Label:     chat.ModelLabel(id),
			Available: isOwner || registry.IsModelAllowed(planID, id),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"default": chat.DefaultModel,
	})
}

// planInfo describes one plan for the pricing page.
type planInfo struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	MessagesPerMonth int64    `json:"messages_per_month"`
	PriceMonthly     int64    `json:"price_monthly_cents"`
	Models           []string `json:"models"`
}

// ListPlans handles GET /api/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.meter.Registry().List()
	out := make([]planInfo, 0, len(plans))
	for _, p := range plans {
		out = append(out, planInfo{
			ID:               p.ID,
			Name:             p.Name,
			MessagesPerMonth: p.MessagesPerMonth,
			PriceMonthly:     p.PriceMonthly,
			Models:           p.AllowedModels,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// Me handles GET /api/me: the caller's profile, plan, and remaining quota.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	decision, err := h.meter.Evaluate(r.Context(), identity)
	if err != nil {
		h.writeGateError(w, err)
		return
	}

	user, err := h.users.Get(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("user lookup failed")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    identity.UserID,
			"email": identity.Email,
			"name":  user.Name,
		},
		"plan":      decision.Plan,
		"is_owner":  decision.IsOwner,
		"remaining": decision.Remaining,
		"limit":     decision.Limit,
	})
}

// checkoutRequest is the body of POST /api/billing/checkout.
type checkoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckout handles POST /api/billing/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	var body checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if !h.meter.Registry().Has(body.Plan) {
		writeError(w, http.StatusBadRequest, "unknown_plan", "Unknown plan")
		return
	}

	url, err := h.subs.CreateCheckout(r.Context(), identity, body.Plan)
	if err != nil {
		if errors.Is(err, app.ErrNoPriceForPlan) {
			writeError(w, http.StatusBadRequest, "no_price_for_plan", "This plan cannot be purchased")
			return
		}
		h.logger.Error().Err(err).Str("plan", body.Plan).Msg("checkout creation failed")
		writeError(w, http.StatusBadGateway, "checkout_failed", "Could not create a checkout session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// PaymentWebhook handles POST /webhooks/payment.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read request body")
		return
	}

	// LemonSqueezy sends X-Signature, Stripe sends Stripe-Signature.
	signature := r.Header.Get("X-Signature")
	if signature == "" {
		signature = r.Header.Get("Stripe-Signature")
	}

	if err := h.subs.HandleWebhook(r.Context(), payload, signature); err != nil {
		h.logger.Warn().Err(err).Msg("webhook rejected")
		writeError(w, http.StatusBadRequest, "invalid_webhook", "Webhook could not be processed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version,
		"service": "chatgate",
	})
}

func setUsageHeaders(w http.ResponseWriter, result app.GateResult) {
	w.Header().Set("X-Usage-Remaining", strconv.FormatInt(result.Remaining, 10))
	w.Header().Set("X-Usage-Limit", strconv.FormatInt(result.Limit, 10))
}

// NewLoggingMiddleware creates middleware that logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
