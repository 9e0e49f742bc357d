package plan_test

import (
	"errors"
	"testing"

	"github.com/chatgate/chatgate/domain/plan"
)

func testPlans() []plan.Plan {
	return []plan.Plan{
		{ID: plan.Free, Name: "Free", MessagesPerMonth: 20, AllowedModels: []string{"gpt-3.5-turbo"}},
		{ID: plan.Pro, Name: "Pro", MessagesPerMonth: plan.Unlimited, AllowedModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}},
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := plan.NewRegistry([]plan.Plan{
		{ID: "FREE"},
		{ID: "FREE"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate plan id")
	}
}

func TestNewRegistry_RejectsEmptyID(t *testing.T) {
	_, err := plan.NewRegistry([]plan.Plan{{ID: ""}})
	if err == nil {
		t.Fatal("expected error for empty plan id")
	}
}

func TestLookup_KnownPlan(t *testing.T) {
	r, err := plan.NewRegistry(testPlans())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	p, err := r.Lookup(plan.Free)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.MessagesPerMonth != 20 {
		t.Errorf("MessagesPerMonth = %d, want 20", p.MessagesPerMonth)
	}
}

func TestLookup_UnknownPlanFailsClosed(t *testing.T) {
	r, _ := plan.NewRegistry(testPlans())

	_, err := r.Lookup("LEGACY")
	if !errors.Is(err, plan.ErrUnknownPlan) {
		t.Fatalf("error = %v, want ErrUnknownPlan", err)
	}
}

func TestIsUnlimited(t *testing.T) {
	tests := []struct {
		quota int64
		want  bool
	}{
		{20, false},
		{0, false},
		{plan.Unlimited, true},
	}

	for _, tt := range tests {
		p := plan.Plan{ID: "X", MessagesPerMonth: tt.quota}
		if got := p.IsUnlimited(); got != tt.want {
			t.Errorf("IsUnlimited(%d) = %v, want %v", tt.quota, got, tt.want)
		}
	}
}

func TestIsModelAllowed(t *testing.T) {
	r, _ := plan.NewRegistry(testPlans())

	tests := []struct {
		plan  string
		model string
		want  bool
	}{
		{plan.Free, "gpt-3.5-turbo", true},
		{plan.Free, "gpt-4o", false},
		{plan.Pro, "gpt-4o", true},
		{plan.Pro, "gpt-4o-mini", true},
		{"LEGACY", "gpt-3.5-turbo", false}, // unknown plans allow nothing
	}

	for _, tt := range tests {
		t.Run(tt.plan+"/"+tt.model, func(t *testing.T) {
			if got := r.IsModelAllowed(tt.plan, tt.model); got != tt.want {
				t.Errorf("IsModelAllowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestList_PreservesOrder(t *testing.T) {
	r, _ := plan.NewRegistry(testPlans())

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != plan.Free || list[1].ID != plan.Pro {
		t.Errorf("order = %s, %s; want FREE, PRO", list[0].ID, list[1].ID)
	}
}
