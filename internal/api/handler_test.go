package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/creator-payouts/internal/api"
	"github.com/ayo6706/creator-payouts/internal/api/middleware"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/queue"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/ayo6706/creator-payouts/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "creator-payouts-test"
	testJWTAudience = "payouts-api-test"
	testHMACKey     = "test-webhook-hmac-key"
)

type testAPI struct {
	router     http.Handler
	store      *repository.MemoryStore
	adapter    *provider.MockAdapter
	dispatcher *queue.Dispatcher
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	store := repository.NewMemoryStore()
	adapter := provider.NewMockAdapter("transferzen", testHMACKey)
	registry := provider.NewRegistry(adapter)
	router := service.NewRouter([]service.RouteRule{
		{Country: "US", Currency: "USD", Route: service.Route{ProviderID: "transferzen", TargetCurrency: "USD"}},
	})

	ledgerSvc := service.NewLedgerService(store)
	bankSvc := service.NewBankAccountService(store)
	eligSvc := service.NewEligibilityService(store, service.EligibilityConfig{
		MinimumsMicros: map[string]int64{"USD": 25_000_000},
		MaxConcurrent:  3,
	})
	reconcilerSvc := service.NewReconcilerService(store)
	payoutSvc := service.NewPayoutService(store, eligSvc, router, registry, time.Second)

	dispatcher := queue.NewDispatcher(16)
	t.Cleanup(dispatcher.Close)

	a := api.NewRouter(api.Deps{
		Logger:             zap.NewNop(),
		Queries:            store.Queries(),
		Ledger:             ledgerSvc,
		Bank:               bankSvc,
		Elig:               eligSvc,
		Payouts:            payoutSvc,
		Reconciler:         reconcilerSvc,
		Providers:          registry,
		Dispatcher:         dispatcher,
		BaseCtx:            context.Background(),
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
	})

	return &testAPI{
		router:     a.Routes(),
		store:      store,
		adapter:    adapter,
		dispatcher: dispatcher,
	}
}

func generateTokenWithRole(creatorID, role string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"creator_id": creatorID,
		"role":       role,
		"iss":        testJWTIssuer,
		"aud":        testJWTAudience,
		"sub":        creatorID,
		"iat":        now.Unix(),
		"nbf":        now.Add(-30 * time.Second).Unix(),
		"exp":        now.Add(time.Hour).Unix(),
	})
	signed, _ := token.SignedString([]byte(testJWTSecret))
	return signed
}

func generateCreatorToken(creatorID uuid.UUID) string {
	return generateTokenWithRole(creatorID.String(), "creator")
}

func (a *testAPI) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) recordEarning(t *testing.T, creatorID uuid.UUID, amountMicros int64) {
	t.Helper()
	w := a.do(t, "POST", "/v1/earnings", generateTokenWithRole(uuid.NewString(), "service"), map[string]any{
		"creator_id":    creatorID,
		"amount_micros": amountMicros,
		"currency":      "USD",
		"source_type":   "tip",
		"source_ref":    uuid.NewString(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (a *testAPI) upsertVerifiedBank(t *testing.T, creatorID uuid.UUID) {
	t.Helper()
	w := a.do(t, "PUT", "/v1/creators/"+creatorID.String()+"/bank-account",
		generateTokenWithRole(uuid.NewString(), "service"), map[string]string{
			"country":      "US",
			"currency":     "USD",
			"account_name": "Test Creator",
			"account_ref":  "ba-token-1",
			"status":       "VERIFIED",
		})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	creatorID := uuid.New().String()
	w := a.do(t, "GET", "/v1/creators/"+creatorID+"/ledger", "", nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/creators/"+creatorID+"/ledger", body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestEarningsRequireServiceRole(t *testing.T) {
	a := setupAPI(t)
	creatorID := uuid.New()

	w := a.do(t, "POST", "/v1/earnings", generateCreatorToken(creatorID), map[string]any{
		"creator_id":    creatorID,
		"amount_micros": 1_000_000,
		"currency":      "USD",
		"source_ref":    "tip-http-1",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	a.recordEarning(t, creatorID, 50_000_000)

	w = a.do(t, "GET", "/v1/creators/"+creatorID.String()+"/ledger", generateCreatorToken(creatorID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ledger models.CreatorLedger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ledger))
	assert.Equal(t, int64(50_000_000), ledger.AvailableMicros)
}

func TestLedgerOwnership(t *testing.T) {
	a := setupAPI(t)
	owner := uuid.New()
	a.recordEarning(t, owner, 50_000_000)

	// Another creator cannot read it.
	w := a.do(t, "GET", "/v1/creators/"+owner.String()+"/ledger", generateCreatorToken(uuid.New()), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// An admin can.
	w = a.do(t, "GET", "/v1/creators/"+owner.String()+"/ledger", generateTokenWithRole(uuid.NewString(), "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestEligibilityEndpoint(t *testing.T) {
	a := setupAPI(t)
	creatorID := uuid.New()
	a.recordEarning(t, creatorID, 100_000_000)

	path := fmt.Sprintf("/v1/creators/%s/eligibility?amount_micros=%d", creatorID, 30_000_000)
	w := a.do(t, "GET", path, generateCreatorToken(creatorID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result service.EligibilityResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Reasons, "bank_account_missing")

	a.upsertVerifiedBank(t, creatorID)

	w = a.do(t, "GET", path, generateCreatorToken(creatorID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Eligible)

	// Missing amount is a 400.
	w = a.do(t, "GET", "/v1/creators/"+creatorID.String()+"/eligibility", generateCreatorToken(creatorID), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayoutLifecycleOverHTTP(t *testing.T) {
	a := setupAPI(t)
	creatorID := uuid.New()
	token := generateCreatorToken(creatorID)
	a.recordEarning(t, creatorID, 100_000_000)
	a.upsertVerifiedBank(t, creatorID)

	w := a.do(t, "POST", "/v1/payouts", token, map[string]any{
		"amount_micros":   30_000_000,
		"idempotency_key": "http-payout-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var payout models.PayoutRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payout))
	assert.Equal(t, "PROCESSING", payout.Status)
	require.NotNil(t, payout.ExternalTransferID)

	// Replaying the same key returns the same payout without a second reserve.
	w = a.do(t, "POST", "/v1/payouts", token, map[string]any{
		"amount_micros":   30_000_000,
		"idempotency_key": "http-payout-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var replayed models.PayoutRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replayed))
	assert.Equal(t, payout.ID, replayed.ID)

	// Provider settles the transfer and notifies us.
	body, err := json.Marshal(map[string]string{
		"transfer_id": *payout.ExternalTransferID,
		"status":      "completed",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/webhooks/transferzen", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", a.adapter.SignWebhookPayload(body))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// Application is async; poll until the reconciler lands it.
	require.Eventually(t, func() bool {
		w := a.do(t, "GET", "/v1/payouts/"+payout.ID.String(), token, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var view service.PayoutView
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			return false
		}
		return view.Payout.Status == "COMPLETED"
	}, 3*time.Second, 20*time.Millisecond)

	w = a.do(t, "GET", "/v1/creators/"+creatorID.String()+"/ledger", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ledger models.CreatorLedger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ledger))
	assert.Equal(t, int64(70_000_000), ledger.AvailableMicros)
	assert.Equal(t, int64(0), ledger.PendingMicros)
}

func TestPayoutNotEligibleReturns422WithReasons(t *testing.T) {
	a := setupAPI(t)
	creatorID := uuid.New()
	a.recordEarning(t, creatorID, 100_000_000)
	// no bank account

	w := a.do(t, "POST", "/v1/payouts", generateCreatorToken(creatorID), map[string]any{
		"amount_micros":   30_000_000,
		"idempotency_key": "http-payout-noelig",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body struct {
		Reasons []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Reasons, "bank_account_missing")
}

func TestPayoutOwnershipMaskedAsNotFound(t *testing.T) {
	a := setupAPI(t)
	owner := uuid.New()
	a.recordEarning(t, owner, 100_000_000)
	a.upsertVerifiedBank(t, owner)

	w := a.do(t, "POST", "/v1/payouts", generateCreatorToken(owner), map[string]any{
		"amount_micros":   30_000_000,
		"idempotency_key": "http-payout-mask",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var payout models.PayoutRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payout))

	// Another creator sees 404, not 403, so payout ids are not probeable.
	w = a.do(t, "GET", "/v1/payouts/"+payout.ID.String(), generateCreatorToken(uuid.New()), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// An admin can read it.
	w = a.do(t, "GET", "/v1/payouts/"+payout.ID.String(), generateTokenWithRole(uuid.NewString(), "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCancelDispatchedPayoutConflicts(t *testing.T) {
	a := setupAPI(t)
	creatorID := uuid.New()
	token := generateCreatorToken(creatorID)
	a.recordEarning(t, creatorID, 100_000_000)
	a.upsertVerifiedBank(t, creatorID)

	w := a.do(t, "POST", "/v1/payouts", token, map[string]any{
		"amount_micros":   30_000_000,
		"idempotency_key": "http-payout-cancel",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var payout models.PayoutRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payout))
	require.Equal(t, "PROCESSING", payout.Status)

	w = a.do(t, "POST", "/v1/payouts/"+payout.ID.String()+"/cancel", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestWebhookRejections(t *testing.T) {
	a := setupAPI(t)

	body := []byte(`{"transfer_id":"TRF-1","status":"completed"}`)

	// Unknown provider.
	req := httptest.NewRequest("POST", "/v1/webhooks/nobody", bytes.NewReader(body))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	// Bad signature.
	req = httptest.NewRequest("POST", "/v1/webhooks/transferzen", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", "sha256=deadbeef")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid signature, invalid payload.
	badPayload := []byte(`{"status":"completed"}`)
	req = httptest.NewRequest("POST", "/v1/webhooks/transferzen", bytes.NewReader(badPayload))
	req.Header.Set("X-Webhook-Signature", a.adapter.SignWebhookPayload(badPayload))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnomalyEndpointsRequireAdmin(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, "GET", "/v1/anomalies", generateCreatorToken(uuid.New()), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	adminToken := generateTokenWithRole(uuid.NewString(), "admin")
	w = a.do(t, "GET", "/v1/anomalies", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var anomalies []models.Anomaly
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &anomalies))
	assert.Empty(t, anomalies)

	// Resolving a nonexistent anomaly is a 404.
	w = a.do(t, "POST", "/v1/anomalies/999/resolve", adminToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, "GET", "/healthz/live", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, "GET", "/healthz/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, "GET", "/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
