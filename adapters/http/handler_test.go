package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/adapters/auth"
	"github.com/chatgate/chatgate/adapters/clock"
	chathttp "github.com/chatgate/chatgate/adapters/http"
	"github.com/chatgate/chatgate/adapters/idgen"
	"github.com/chatgate/chatgate/adapters/memory"
	"github.com/chatgate/chatgate/adapters/metrics"
	"github.com/chatgate/chatgate/app"
	"github.com/chatgate/chatgate/domain/chat"
	"github.com/chatgate/chatgate/domain/plan"
	"github.com/chatgate/chatgate/ports"
)

const testOwner = "owner@example.com"

type stubCompleter struct {
	err   error
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	s.calls++
	if s.err != nil {
		return chat.Response{}, s.err
	}
	return chat.Response{
		ID:           "cmpl-1",
		Model:        req.Model,
		Content:      "stub reply",
		FinishReason: "stop",
		Usage:        chat.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
	}, nil
}

type stubPayments struct{}

func (stubPayments) Name() string { return "stub" }

func (stubPayments) CreateCheckout(ctx context.Context, params ports.CheckoutParams) (string, error) {
	return "https://pay.example.com/c/" + params.PlanID, nil
}

func (stubPayments) ParseWebhook(payload []byte, signature string) (ports.SubscriptionEvent, error) {
	if signature != "valid" {
		return ports.SubscriptionEvent{}, errors.New("bad signature")
	}
	var body struct {
		Kind           string `json:"kind"`
		RawType        string `json:"raw_type"`
		UserID         string `json:"user_id"`
		PlanID         string `json:"plan_id"`
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ports.SubscriptionEvent{}, err
	}
	return ports.SubscriptionEvent{
		Kind:           ports.SubscriptionEventKind(body.Kind),
		RawType:        body.RawType,
		UserID:         body.UserID,
		PlanID:         body.PlanID,
		SubscriptionID: body.SubscriptionID,
	}, nil
}

type apiFixture struct {
	srv          *httptest.Server
	entitlements *memory.EntitlementStore
	completer    *stubCompleter
	clk          *clock.Fake
}

func newAPIFixture(t *testing.T, freeQuota int64) *apiFixture {
	t.Helper()

	registry, err := plan.NewRegistry([]plan.Plan{
		{ID: plan.Free, Name: "Free", MessagesPerMonth: freeQuota, AllowedModels: []string{chat.ModelGPT35Turbo}},
		{ID: plan.Pro, Name: "Pro", MessagesPerMonth: plan.Unlimited, PriceMonthly: 1900,
			AllowedModels: []string{chat.ModelGPT4o, chat.ModelGPT4oMini, chat.ModelGPT35Turbo}},
		{ID: plan.Team, Name: "Team", MessagesPerMonth: plan.Unlimited,
			AllowedModels: []string{chat.ModelGPT4o, chat.ModelGPT4oMini, chat.ModelGPT35Turbo}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	entitlements := memory.NewEntitlementStore()
	users := memory.NewUserStore()
	subs := memory.NewSubscriptionStore()
	completer := &stubCompleter{}
	m, _ := metrics.New()
	log := zerolog.Nop()

	meterSvc := app.NewMeterService(entitlements, clk, app.MeterConfig{
		Registry:   registry,
		OwnerEmail: testOwner,
	})
	gateSvc := app.NewGateService(app.GateDeps{
		Meter:     meterSvc,
		Completer: completer,
		Metrics:   m,
		Clock:     clk,
		Log:       log,
	})
	subsSvc := app.NewSubscriptionService(app.SubscriptionDeps{
		Entitlements: entitlements,
		Subs:         subs,
		Provider:     stubPayments{},
		Metrics:      m,
		Clock:        clk,
		Log:          log,
	}, app.CheckoutConfig{
		Prices: map[string]string{plan.Pro: "price_pro"},
	})

	h := chathttp.NewHandler(chathttp.HandlerDeps{
		Gate:   gateSvc,
		Meter:  meterSvc,
		Subs:   subsSvc,
		Users:  users,
		Tokens: auth.NewTokenService("test-secret", time.Hour),
		IDGen:  idgen.NewSequential("user-"),
		Clock:  clk,
		Logger: log,
	})

	srv := httptest.NewServer(chathttp.NewRouter(h, log, chathttp.RouterConfig{Metrics: m}))
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, entitlements: entitlements, completer: completer, clk: clk}
}

func (f *apiFixture) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *apiFixture) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signup(t *testing.T, f *apiFixture, email, password string) string {
	t.Helper()
	resp := f.post(t, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	if body.Token == "" {
		t.Fatal("signup returned empty token")
	}
	return body.Token
}

func TestSignupLoginChat(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "alice@example.com", "password123")

	// Login with the same credentials works too.
	resp := f.post(t, "/api/auth/login", "", map[string]string{
		"email":    "Alice@Example.com", // emails are normalized
		"password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong password is rejected.
	resp = f.post(t, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Chat with the allowed model succeeds and reports quota headers.
	resp = f.post(t, "/api/chat", token, map[string]any{
		"model":    chat.ModelGPT35Turbo,
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Usage-Remaining"); got != "19" {
		t.Errorf("X-Usage-Remaining = %q, want 19", got)
	}
	if got := resp.Header.Get("X-Usage-Limit"); got != "20" {
		t.Errorf("X-Usage-Limit = %q, want 20", got)
	}
	var chatBody struct {
		Content string `json:"content"`
	}
	decodeBody(t, resp, &chatBody)
	if chatBody.Content != "stub reply" {
		t.Errorf("content = %q", chatBody.Content)
	}
}

func TestChat_QuotaExhaustionReturns429(t *testing.T) {
	f := newAPIFixture(t, 2)
	token := signup(t, f, "bob@example.com", "password123")

	reqBody := map[string]any{
		"model":    chat.ModelGPT35Turbo,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}

	for i := 0; i < 2; i++ {
		resp := f.post(t, "/api/chat", token, reqBody)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("chat #%d status = %d, want 200", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := f.post(t, "/api/chat", token, reqBody)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error.Code != "rate_limit" {
		t.Errorf("error code = %q, want rate_limit", body.Error.Code)
	}

	// The denied request never reached the upstream.
	if f.completer.calls != 2 {
		t.Errorf("completer calls = %d, want 2", f.completer.calls)
	}
}

func TestChat_ModelNotAllowedReturns403(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "carol@example.com", "password123")

	resp := f.post(t, "/api/chat", token, map[string]any{
		"model":    chat.ModelGPT4o,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error.Code != "model_not_allowed" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestChat_UnsupportedModelReturns400(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "dave@example.com", "password123")

	resp := f.post(t, "/api/chat", token, map[string]any{
		"model":    "gpt-99",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChat_UpstreamErrorReturns502(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "erin@example.com", "password123")
	f.completer.err = errors.New("upstream down")

	resp := f.post(t, "/api/chat", token, map[string]any{
		"model":    chat.ModelGPT35Turbo,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChat_Unauthenticated(t *testing.T) {
	f := newAPIFixture(t, 20)

	resp := f.post(t, "/api/chat", "", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newAPIFixture(t, 20)
	signup(t, f, "frank@example.com", "password123")

	resp := f.post(t, "/api/auth/signup", "", map[string]string{
		"email":    "frank@example.com",
		"password": "password456",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListModels_ReflectsPlan(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "grace@example.com", "password123")

	resp := f.get(t, "/api/models", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Models []struct {
			ID        string `json:"id"`
			Available bool   `json:"available"`
		} `json:"models"`
		Default string `json:"default"`
	}
	decodeBody(t, resp, &body)

	if body.Default != chat.DefaultModel {
		t.Errorf("default = %q", body.Default)
	}
	available := map[string]bool{}
	for _, m := range body.Models {
		available[m.ID] = m.Available
	}
	if !available[chat.ModelGPT35Turbo] {
		t.Error("gpt-3.5-turbo should be available on FREE")
	}
	if available[chat.ModelGPT4o] {
		t.Error("gpt-4o should be locked on FREE")
	}
}

func TestListPlans(t *testing.T) {
	f := newAPIFixture(t, 20)

	resp := f.get(t, "/api/plans", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Plans []struct {
			ID string `json:"id"`
		} `json:"plans"`
	}
	decodeBody(t, resp, &body)
	if len(body.Plans) != 3 {
		t.Fatalf("len(plans) = %d, want 3", len(body.Plans))
	}
	if body.Plans[0].ID != plan.Free {
		t.Errorf("first plan = %q, want FREE", body.Plans[0].ID)
	}
}

func TestMe(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "heidi@example.com", "password123")

	resp := f.get(t, "/api/me", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Plan      string `json:"plan"`
		IsOwner   bool   `json:"is_owner"`
		Remaining int64  `json:"remaining"`
		Limit     int64  `json:"limit"`
	}
	decodeBody(t, resp, &body)
	if body.Plan != plan.Free || body.IsOwner {
		t.Errorf("me = %+v", body)
	}
	if body.Limit != 20 {
		t.Errorf("limit = %d, want 20", body.Limit)
	}
}

func TestCreateCheckout_Flow(t *testing.T) {
	f := newAPIFixture(t, 20)
	token := signup(t, f, "ivan@example.com", "password123")

	resp := f.post(t, "/api/billing/checkout", token, map[string]string{"plan": plan.Pro})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		CheckoutURL string `json:"checkout_url"`
	}
	decodeBody(t, resp, &body)
	if body.CheckoutURL != "https://pay.example.com/c/PRO" {
		t.Errorf("checkout_url = %q", body.CheckoutURL)
	}

	// A plan without a configured price cannot be purchased.
	resp = f.post(t, "/api/billing/checkout", token, map[string]string{"plan": plan.Team})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown plans are rejected before touching the provider.
	resp = f.post(t, "/api/billing/checkout", token, map[string]string{"plan": "MYSTERY"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPaymentWebhook_UpgradesUser(t *testing.T) {
	f := newAPIFixture(t, 2)
	token := signup(t, f, "judy@example.com", "password123")

	// The first sequential user ID.
	payload := fmt.Sprintf(`{
		"kind": "subscription_activated",
		"raw_type": "subscription_created",
		"user_id": "user-1",
		"plan_id": %q,
		"subscription_id": "sub_1"
	}`, plan.Pro)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/webhooks/payment", bytes.NewReader([]byte(payload)))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Signature", "valid")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST webhook: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// The user is now on PRO with unlimited messages.
	for i := 0; i < 5; i++ {
		chatResp := f.post(t, "/api/chat", token, map[string]any{
			"model":    chat.ModelGPT4o,
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		if chatResp.StatusCode != http.StatusOK {
			t.Fatalf("chat #%d status = %d, want 200", i+1, chatResp.StatusCode)
		}
		chatResp.Body.Close()
	}
}

func TestPaymentWebhook_RejectsBadSignature(t *testing.T) {
	f := newAPIFixture(t, 20)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/webhooks/payment", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Signature", "forged")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST webhook: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthAndVersion(t *testing.T) {
	f := newAPIFixture(t, 20)

	resp := f.get(t, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.get(t, "/version", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("version status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t, 20)

	// No metrics handler was mounted in the fixture.
	resp := f.get(t, "/metrics", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404 without handler", resp.StatusCode)
	}
	resp.Body.Close()
}
