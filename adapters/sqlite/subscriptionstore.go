package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/chatgate/chatgate/domain/billing"
	"github.com/chatgate/chatgate/ports"
)

// SubscriptionStore implements ports.SubscriptionStore using SQLite.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a new SQLite subscription store.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// GetByProviderID retrieves a subscription by the provider's identifier.
func (s *SubscriptionStore) GetByProviderID(ctx context.Context, providerID string) (billing.Subscription, error) {
	return s.scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, provider, provider_id, status,
		       renews_at, cancelled_at, created_at, updated_at
		FROM subscriptions WHERE provider_id = ?
	`, providerID))
}

// GetByUser retrieves the latest subscription for a user.
func (s *SubscriptionStore) GetByUser(ctx context.Context, userID string) (billing.Subscription, error) {
	return s.scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, provider, provider_id, status,
		       renews_at, cancelled_at, created_at, updated_at
		FROM subscriptions WHERE user_id = ?
		ORDER BY updated_at DESC LIMIT 1
	`, userID))
}

// Upsert creates or replaces a subscription keyed by provider ID.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub billing.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions
			(id, user_id, plan_id, provider, provider_id, status,
			 renews_at, cancelled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			renews_at = excluded.renews_at,
			cancelled_at = excluded.cancelled_at,
			updated_at = excluded.updated_at
	`, sub.ID, sub.UserID, sub.PlanID, sub.Provider, sub.ProviderID,
		string(sub.Status), sub.RenewsAt, sub.CancelledAt, sub.CreatedAt, sub.UpdatedAt)
	return err
}

// UpdateStatus changes the status of a subscription by provider ID.
func (s *SubscriptionStore) UpdateStatus(ctx context.Context, providerID string, status billing.SubscriptionStatus, at time.Time) error {
	var cancelledAt *time.Time
	if status == billing.SubscriptionStatusCancelled {
		cancelledAt = &at
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = ?, cancelled_at = COALESCE(?, cancelled_at), updated_at = ?
		WHERE provider_id = ?
	`, string(status), cancelledAt, at, providerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubscriptionStore) scanSubscription(row *sql.Row) (billing.Subscription, error) {
	var sub billing.Subscription
	var status string
	var renewsAt, cancelledAt sql.NullTime
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Provider, &sub.ProviderID,
		&status, &renewsAt, &cancelledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return billing.Subscription{}, ErrNotFound
	}
	if err != nil {
		return billing.Subscription{}, err
	}
	sub.Status = billing.SubscriptionStatus(status)
	if renewsAt.Valid {
		t := renewsAt.Time
		sub.RenewsAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		sub.CancelledAt = &t
	}
	return sub, nil
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
