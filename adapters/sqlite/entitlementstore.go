package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/chatgate/chatgate/domain/meter"
	"github.com/chatgate/chatgate/ports"
)

// EntitlementStore implements ports.EntitlementStore using SQLite.
// Plan assignments and usage records survive server restarts; the
// usage increment is a single UPDATE so concurrent requests never
// lose counts to read-modify-write races.
type EntitlementStore struct {
	db *DB
}

// NewEntitlementStore creates a new SQLite entitlement store.
func NewEntitlementStore(db *DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

// GetUserPlan retrieves the user's plan assignment.
func (s *EntitlementStore) GetUserPlan(ctx context.Context, userID string) (string, bool, error) {
	var planID string
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_id FROM user_plans WHERE user_id = ?
	`, userID).Scan(&planID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return planID, true, nil
}

// SetUserPlan assigns a plan to a user.
func (s *EntitlementStore) SetUserPlan(ctx context.Context, userID, planID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_plans (user_id, plan_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			updated_at = excluded.updated_at
	`, userID, planID, now)
	return err
}

// GetUsageRecord retrieves the user's usage record.
func (s *EntitlementStore) GetUsageRecord(ctx context.Context, userID string) (meter.UsageRecord, bool, error) {
	var rec meter.UsageRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, message_count, period_start
		FROM usage_records
		WHERE user_id = ?
	`, userID).Scan(&rec.UserID, &rec.Count, &rec.PeriodStart)
	if err == sql.ErrNoRows {
		return meter.UsageRecord{}, false, nil
	}
	if err != nil {
		return meter.UsageRecord{}, false, err
	}
	return rec, true, nil
}

// CreateUsageRecord creates the user's usage record. Creating an
// already-existing record leaves the stored row untouched so a
// concurrent creator cannot zero a count that was just incremented.
func (s *EntitlementStore) CreateUsageRecord(ctx context.Context, userID string, count int64, periodStart time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (user_id, message_count, period_start, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, count, periodStart, now)
	return err
}

// ResetUsageRecord zeroes the count and advances the period start.
func (s *EntitlementStore) ResetUsageRecord(ctx context.Context, userID string, periodStart time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (user_id, message_count, period_start, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			message_count = 0,
			period_start = excluded.period_start,
			updated_at = excluded.updated_at
	`, userID, periodStart, now)
	return err
}

// IncrementUsageRecord adds one to the stored count with a single
// atomic UPDATE.
func (s *EntitlementStore) IncrementUsageRecord(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE usage_records
		SET message_count = message_count + 1, updated_at = ?
		WHERE user_id = ?
	`, now, userID)
	return err
}

// Ensure interface compliance.
var _ ports.EntitlementStore = (*EntitlementStore)(nil)
