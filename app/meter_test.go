package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatgate/chatgate/adapters/clock"
	"github.com/chatgate/chatgate/adapters/memory"
	"github.com/chatgate/chatgate/app"
	"github.com/chatgate/chatgate/domain/meter"
	"github.com/chatgate/chatgate/domain/plan"
	"github.com/chatgate/chatgate/ports"
)

const ownerEmail = "owner@example.com"

func testRegistry(t *testing.T) *plan.Registry {
	t.Helper()
	r, err := plan.NewRegistry([]plan.Plan{
		{ID: plan.Free, Name: "Free", MessagesPerMonth: 20, AllowedModels: []string{"gpt-3.5-turbo"}},
		{ID: plan.Pro, Name: "Pro", MessagesPerMonth: plan.Unlimited, AllowedModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}},
		{ID: plan.Team, Name: "Team", MessagesPerMonth: plan.Unlimited, AllowedModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func newMeter(t *testing.T, store ports.EntitlementStore, clk ports.Clock) *app.MeterService {
	t.Helper()
	return app.NewMeterService(store, clk, app.MeterConfig{
		Registry:   testRegistry(t),
		OwnerEmail: ownerEmail,
	})
}

// failingStore errors on every operation, simulating a store outage.
type failingStore struct{}

func (failingStore) GetUserPlan(ctx context.Context, userID string) (string, bool, error) {
	return "", false, errors.New("store down")
}
func (failingStore) SetUserPlan(ctx context.Context, userID, planID string) error {
	return errors.New("store down")
}
func (failingStore) GetUsageRecord(ctx context.Context, userID string) (meter.UsageRecord, bool, error) {
	return meter.UsageRecord{}, false, errors.New("store down")
}
func (failingStore) CreateUsageRecord(ctx context.Context, userID string, count int64, periodStart time.Time) error {
	return errors.New("store down")
}
func (failingStore) ResetUsageRecord(ctx context.Context, userID string, periodStart time.Time) error {
	return errors.New("store down")
}
func (failingStore) IncrementUsageRecord(ctx context.Context, userID string) error {
	return errors.New("store down")
}

func TestEvaluate_FreeUserLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newMeter(t, store, clk)
	id := ports.Identity{UserID: "u1", Email: "u1@example.com"}

	// A user with no plan assignment is FREE: 20 messages per month.
	for i := int64(0); i < 20; i++ {
		d, err := svc.Evaluate(ctx, id)
		if err != nil {
			t.Fatalf("Evaluate #%d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("Evaluate #%d: denied, want allowed", i+1)
		}
		if want := 20 - i - 1; d.Remaining != want {
			t.Errorf("Evaluate #%d: Remaining = %d, want %d", i+1, d.Remaining, want)
		}
		if d.Plan != plan.Free {
			t.Errorf("Plan = %q, want FREE", d.Plan)
		}
		if err := svc.RecordUsage(ctx, id); err != nil {
			t.Fatalf("RecordUsage #%d: %v", i+1, err)
		}
	}

	// Message 21 is denied with the quota reported.
	d, err := svc.Evaluate(ctx, id)
	if err != nil {
		t.Fatalf("Evaluate #21: %v", err)
	}
	if d.Allowed {
		t.Fatal("Evaluate #21: allowed, want denied")
	}
	if d.Limit != 20 || d.Remaining != 0 {
		t.Errorf("denied decision = Limit %d Remaining %d, want 20 and 0", d.Limit, d.Remaining)
	}
}

func TestEvaluate_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newMeter(t, store, clk)
	id := ports.Identity{UserID: "u1", Email: "u1@example.com"}

	// Repeated evaluation without RecordUsage must not consume quota.
	for i := 0; i < 5; i++ {
		d, err := svc.Evaluate(ctx, id)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if d.Remaining != 19 {
			t.Fatalf("Evaluate #%d: Remaining = %d, want 19", i+1, d.Remaining)
		}
	}

	rec, found, _ := store.GetUsageRecord(ctx, "u1")
	if !found {
		t.Fatal("usage record not created")
	}
	if rec.Count != 0 {
		t.Errorf("Count = %d, want 0", rec.Count)
	}
}

func TestEvaluate_MonthRolloverResets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	clk := clock.NewFake(time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC))
	svc := newMeter(t, store, clk)
	id := ports.Identity{UserID: "u1", Email: "u1@example.com"}

	// Exhaust February's quota.
	for i := 0; i < 20; i++ {
		if _, err := svc.Evaluate(ctx, id); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if err := svc.RecordUsage(ctx, id); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}
	if d, _ := svc.Evaluate(ctx, id); d.Allowed {
		t.Fatal("request at limit allowed, want denied")
	}

	// March begins; the quota resets on the next evaluation.
	clk.Set(time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC))
	d, err := svc.Evaluate(ctx, id)
	if err != nil {
		t.Fatalf("Evaluate after rollover: %v", err)
	}
	if !d.Allowed {
		t.Fatal("denied after rollover, want allowed")
	}
	if d.Remaining != 19 {
		t.Errorf("Remaining = %d, want 19", d.Remaining)
	}

	rec, _, _ := store.GetUsageRecord(ctx, "u1")
	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !rec.PeriodStart.Equal(wantStart) {
		t.Errorf("PeriodStart = %v, want %v", rec.PeriodStart, wantStart)
	}
	if rec.Count != 0 {
		t.Errorf("Count = %d, want 0", rec.Count)
	}
}

func TestEvaluate_UnlimitedPlanNeverDenies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newMeter(t, store, clk)
	id := ports.Identity{UserID: "u1", Email: "u1@example.com"}

	if err := store.SetUserPlan(ctx, "u1", plan.Pro); err != nil {
		t.Fatalf("SetUserPlan: %v", err)
	}

	for i := 0; i < 50; i++ {
		d, err := svc.Evaluate(ctx, id)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !d.Allowed {
			t.Fatal("unlimited plan denied")
		}
		if d.Remaining != meter.Unlimited || d.Limit != meter.Unlimited {
			t.Fatalf("Remaining, Limit = %d, %d; want unlimited", d.Remaining, d.Limit)
		}
		if err := svc.RecordUsage(ctx, id); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}
}

func TestEvaluate_OwnerBypassesStore(t *testing.T) {
	ctx := context.Background()
	// A failing store proves the owner path performs no store I/O.
	svc := newMeter(t, failingStore{}, clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))
	owner := ports.Identity{UserID: "u-owner", Email: ownerEmail}

	d, err := svc.Evaluate(ctx, owner)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || !d.IsOwner {
		t.Errorf("decision = Allowed %v IsOwner %v, want both true", d.Allowed, d.IsOwner)
	}
	if d.Plan != plan.Team {
		t.Errorf("Plan = %q, want TEAM", d.Plan)
	}
	if d.Remaining != meter.Unlimited {
		t.Errorf("Remaining = %d, want unlimited", d.Remaining)
	}

	// Owner usage is never recorded either.
	if err := svc.RecordUsage(ctx, owner); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
}

func TestEvaluate_OwnerMatchIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	svc := newMeter(t, store, clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	d, err := svc.Evaluate(ctx, ports.Identity{UserID: "u1", Email: "Owner@example.com"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.IsOwner {
		t.Error("case-variant email treated as owner")
	}
	if d.Plan != plan.Free {
		t.Errorf("Plan = %q, want FREE", d.Plan)
	}
}

func TestEvaluate_StoreFailure(t *testing.T) {
	ctx := context.Background()
	svc := newMeter(t, failingStore{}, clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	_, err := svc.Evaluate(ctx, ports.Identity{UserID: "u1", Email: "u1@example.com"})
	if !errors.Is(err, app.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestEvaluate_UnknownStoredPlanFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	svc := newMeter(t, store, clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	// A plan id that was removed from configuration.
	if err := store.SetUserPlan(ctx, "u1", "LEGACY"); err != nil {
		t.Fatalf("SetUserPlan: %v", err)
	}

	_, err := svc.Evaluate(ctx, ports.Identity{UserID: "u1", Email: "u1@example.com"})
	if !errors.Is(err, plan.ErrUnknownPlan) {
		t.Fatalf("error = %v, want ErrUnknownPlan", err)
	}
}

func TestRecordUsage_StoreFailure(t *testing.T) {
	ctx := context.Background()
	svc := newMeter(t, failingStore{}, clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	err := svc.RecordUsage(ctx, ports.Identity{UserID: "u1", Email: "u1@example.com"})
	if !errors.Is(err, app.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestUpdateConfig_SwapsRegistry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newMeter(t, store, clk)
	id := ports.Identity{UserID: "u1", Email: "u1@example.com"}

	d, err := svc.Evaluate(ctx, id)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Limit != 20 {
		t.Fatalf("Limit = %d, want 20", d.Limit)
	}

	// A hot reload raises the FREE quota.
	r, err := plan.NewRegistry([]plan.Plan{
		{ID: plan.Free, Name: "Free", MessagesPerMonth: 100},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	svc.UpdateConfig(app.MeterConfig{Registry: r, OwnerEmail: ownerEmail})

	d, err = svc.Evaluate(ctx, id)
	if err != nil {
		t.Fatalf("Evaluate after reload: %v", err)
	}
	if d.Limit != 100 {
		t.Errorf("Limit = %d, want 100", d.Limit)
	}
}

func TestPlanFor(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntitlementStore()
	svc := newMeter(t, store, clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	p, err := svc.PlanFor(ctx, ports.Identity{UserID: "u1", Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("PlanFor: %v", err)
	}
	if p.ID != plan.Free {
		t.Errorf("plan = %q, want FREE", p.ID)
	}

	p, err = svc.PlanFor(ctx, ports.Identity{UserID: "u2", Email: ownerEmail})
	if err != nil {
		t.Fatalf("PlanFor owner: %v", err)
	}
	if p.ID != plan.Team {
		t.Errorf("owner plan = %q, want TEAM", p.ID)
	}
}
