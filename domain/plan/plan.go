// Package plan provides plan value types and the plan registry.
// The registry is pure and in-memory: no side effects, no I/O.
package plan

import (
	"errors"
	"fmt"
)

// Well-known plan identifiers. The registry is built from configuration
// and may carry a different set, but these are the defaults.
const (
	Free = "FREE"
	Pro  = "PRO"
	API  = "API"
	Team = "TEAM"
)

// Unlimited is the quota sentinel for plans without a message limit.
const Unlimited int64 = -1

// ErrUnknownPlan is returned when a plan identifier is not registered.
// Callers must fail closed on this error rather than defaulting silently.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan represents a subscription tier (immutable value type).
type Plan struct {
	ID               string
	Name             string
	MessagesPerMonth int64 // Unlimited (-1) = no limit
	PriceMonthly     int64 // cents
	AllowedModels    []string
	LemonVariantID   string
	StripePriceID    string
}

// IsUnlimited reports whether the plan has no message limit.
func (p Plan) IsUnlimited() bool {
	return p.MessagesPerMonth < 0
}

// AllowsModel reports whether modelID is in the plan's allowed set.
func (p Plan) AllowsModel(modelID string) bool {
	for _, m := range p.AllowedModels {
		if m == modelID {
			return true
		}
	}
	return false
}

// Registry holds the closed set of registered plans.
// Constructed once at startup from configuration and treated as
// immutable afterwards; hot reload swaps in a new registry.
type Registry struct {
	plans map[string]Plan
	order []string
}

// NewRegistry builds a registry from a list of plans.
// Duplicate identifiers are rejected.
func NewRegistry(plans []Plan) (*Registry, error) {
	r := &Registry{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if p.ID == "" {
			return nil, errors.New("plan id is required")
		}
		if _, dup := r.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		r.plans[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

// Lookup returns the plan for the given identifier.
// Fails with ErrUnknownPlan if the identifier is not registered.
func (r *Registry) Lookup(planID string) (Plan, error) {
	p, ok := r.plans[planID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}
	return p, nil
}

// Has reports whether the identifier is registered.
func (r *Registry) Has(planID string) bool {
	_, ok := r.plans[planID]
	return ok
}

// IsModelAllowed reports whether the plan permits the given model.
// Unknown plans allow nothing.
func (r *Registry) IsModelAllowed(planID, modelID string) bool {
	p, ok := r.plans[planID]
	if !ok {
		return false
	}
	return p.AllowsModel(modelID)
}

// List returns all registered plans in configuration order.
func (r *Registry) List() []Plan {
	out := make([]Plan, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plans[id])
	}
	return out
}
