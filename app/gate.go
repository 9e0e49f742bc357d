package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/adapters/metrics"
	"github.com/chatgate/chatgate/domain/chat"
	"github.com/chatgate/chatgate/domain/meter"
	"github.com/chatgate/chatgate/ports"
)

// GateService checks entitlement for chat requests and forwards allowed
// requests to the completion provider.
type GateService struct {
	meter     *MeterService
	completer ports.CompletionProvider
	metrics   *metrics.Collector
	clock     ports.Clock
	log       zerolog.Logger
}

// GateDeps contains dependencies for GateService.
type GateDeps struct {
	Meter     *MeterService
	Completer ports.CompletionProvider
	Metrics   *metrics.Collector
	Clock     ports.Clock
	Log       zerolog.Logger
}

// NewGateService creates a new gate service.
func NewGateService(deps GateDeps) *GateService {
	return &GateService{
		meter:     deps.Meter,
		completer: deps.Completer,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		log:       deps.Log,
	}
}

// GateResult is the outcome of an entitlement check.
type GateResult struct {
	Allowed      bool
	DeniedReason string
	Remaining    int64
	Limit        int64
	Plan         string
	IsOwner      bool
}

// Check decides whether the identity may request a completion with the
// given model. Denials are business outcomes, not errors: a non-nil
// error means the check itself could not run.
func (s *GateService) Check(ctx context.Context, identity ports.Identity, model string) (GateResult, error) {
	if model == "" {
		model = chat.DefaultModel
	}
	if !chat.IsSupportedModel(model) {
		return GateResult{}, chat.ErrUnsupportedModel
	}

	decision, err := s.meter.Evaluate(ctx, identity)
	if err != nil {
		return GateResult{}, err
	}

	result := GateResult{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		Limit:     decision.Limit,
		Plan:      decision.Plan,
		IsOwner:   decision.IsOwner,
	}

	if !decision.Allowed {
		result.DeniedReason = meter.ReasonRateLimit
		s.metrics.DenialsTotal.WithLabelValues(meter.ReasonRateLimit).Inc()
		return result, nil
	}

	// The owner may use any model. Everyone else is limited to their
	// plan's allowlist.
	if !decision.IsOwner && !s.meter.Registry().IsModelAllowed(decision.Plan, model) {
		result.Allowed = false
		result.DeniedReason = meter.ReasonModelNotAllowed
		s.metrics.DenialsTotal.WithLabelValues(meter.ReasonModelNotAllowed).Inc()
		return result, nil
	}

	return result, nil
}

// Complete runs the full chat flow: entitlement check, downstream
// completion, then usage recording. Usage is charged only after the
// completion succeeds.
func (s *GateService) Complete(ctx context.Context, identity ports.Identity, req chat.Request) (chat.Response, GateResult, error) {
	if req.Model == "" {
		req.Model = chat.DefaultModel
	}
	if err := chat.Validate(req); err != nil {
		return chat.Response{}, GateResult{}, err
	}

	result, err := s.Check(ctx, identity, req.Model)
	if err != nil {
		s.metrics.ChatRequestsTotal.WithLabelValues("unknown", "error").Inc()
		return chat.Response{}, GateResult{}, err
	}
	if !result.Allowed {
		s.metrics.ChatRequestsTotal.WithLabelValues(result.Plan, "denied").Inc()
		s.log.Info().
			Str("user_id", identity.UserID).
			Str("plan", result.Plan).
			Str("reason", result.DeniedReason).
			Msg("chat request denied")
		return chat.Response{}, result, nil
	}

	start := s.clock.Now()
	resp, err := s.completer.Complete(ctx, req)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.CompletionDuration.WithLabelValues(req.Model).Observe(elapsed.Seconds())
	if err != nil {
		s.metrics.CompletionErrors.WithLabelValues(req.Model).Inc()
		s.metrics.ChatRequestsTotal.WithLabelValues(result.Plan, "upstream_error").Inc()
		return chat.Response{}, result, err
	}

	if err := s.meter.RecordUsage(ctx, identity); err != nil {
		// The completion already succeeded. Log the failed charge but
		// return the response to the user.
		s.log.Error().
			Err(err).
			Str("user_id", identity.UserID).
			Msg("record usage failed after successful completion")
	} else if !result.IsOwner {
		s.metrics.UsageIncrementsTotal.WithLabelValues(result.Plan).Inc()
	}

	s.metrics.ChatRequestsTotal.WithLabelValues(result.Plan, "allowed").Inc()
	s.log.Info().
		Str("user_id", identity.UserID).
		Str("plan", result.Plan).
		Str("model", req.Model).
		Dur("duration", elapsed).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat request completed")

	return resp, result, nil
}
