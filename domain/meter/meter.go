// Package meter provides pure functions for monthly usage metering.
// All functions are deterministic with no side effects.
package meter

import "time"

// Denial reason codes surfaced to clients.
const (
	ReasonRateLimit       = "rate_limit"
	ReasonModelNotAllowed = "model_not_allowed"
)

// Unlimited is the sentinel for "no limit" in Decision fields.
const Unlimited int64 = -1

// Decision is the outcome of a usage evaluation (value type).
type Decision struct {
	Allowed   bool
	Remaining int64 // Unlimited (-1) for plans without a limit
	Limit     int64 // Unlimited (-1) for plans without a limit
	IsOwner   bool
	Plan      string
}

// UsageRecord is the persisted per-user usage state for a period.
type UsageRecord struct {
	UserID      string
	Count       int64
	PeriodStart time.Time
}

// PeriodStart returns the first instant of the calendar month containing t,
// in t's location. Quota periods are calendar months, not rolling windows.
func PeriodStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// PeriodEnd returns the first instant of the month following t.
func PeriodEnd(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, 0)
}

// NeedsReset reports whether a record from recordStart belongs to a
// period before the one containing now.
func NeedsReset(recordStart, now time.Time) bool {
	return recordStart.Before(PeriodStart(now))
}

// Allow builds an allow decision for a metered plan. The remaining count
// reserves capacity for the increment the caller performs on success.
func Allow(planID string, quota, count int64) Decision {
	return Decision{
		Allowed:   true,
		Remaining: quota - count - 1,
		Limit:     quota,
		Plan:      planID,
	}
}

// Deny builds a quota-exceeded decision.
func Deny(planID string, quota int64) Decision {
	return Decision{
		Allowed:   false,
		Remaining: 0,
		Limit:     quota,
		Plan:      planID,
	}
}

// AllowUnlimited builds an allow decision for an unlimited plan or the owner.
func AllowUnlimited(planID string, isOwner bool) Decision {
	return Decision{
		Allowed:   true,
		Remaining: Unlimited,
		Limit:     Unlimited,
		IsOwner:   isOwner,
		Plan:      planID,
	}
}
