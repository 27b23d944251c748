package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/memelab/memeforge/internal/alert"
	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/auth"
	"github.com/memelab/memeforge/internal/billing"
	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/limits"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
	"github.com/memelab/memeforge/internal/service"
)

const (
	testJWTSecret  = "router-test-secret"
	testAdminToken = "admin-token-1234"
)

type testEnv struct {
	router         *gin.Engine
	db             *gorm.DB
	templateRepo   *repository.TemplateRepository
	candidateRepo  *repository.CandidateRepository
	requestLogRepo *repository.RequestLogRepository
	subRepo        *repository.SubscriptionRepository
}

// newTestEnv stands up the full router against a throwaway sqlite database.
// The generate pipeline itself is covered by the service tests; generate
// routes exercised here stop at validation or the limit check.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "router_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := logger.NewDefault()

	templateRepo := repository.NewTemplateRepository(db)
	candidateRepo := repository.NewCandidateRepository(db)
	requestLogRepo := repository.NewRequestLogRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	keyRepo := repository.NewAPIKeyRepository(db)

	subs := &config.SubscriptionConfig{
		DefaultTier: "free",
		TierLimits: map[string]map[string]int{
			"free":      {"daily_memes": 2},
			"plus_tier": {"daily_memes": 100},
		},
	}

	notifier := alert.NewNotifier(&config.TelegramConfig{}, log)
	billingSvc := billing.NewService(&config.StripeConfig{
		TestSecretKey:     "sk_test_123",
		TestWebhookSecret: "whsec_router_test",
		Prices:            map[string]string{domain.TierPlus: "price_plus"},
		SuccessURL:        "https://memeforge.dev/done",
		CancelURL:         "https://memeforge.dev/cancel",
	}, "dev", subRepo, profileRepo, notifier, log)

	deps := &Dependencies{
		GenerateService: &service.GenerateService{},
		ReferralService: service.NewReferralService(profileRepo),
		BillingService:  billingSvc,
		LimitChecker:    limits.NewChecker(subs, subRepo, requestLogRepo, log, true),
		TokenVerifier:   auth.NewTokenVerifier(&config.AuthConfig{JWTSecret: testJWTSecret}),
		APIKeyService:   auth.NewAPIKeyService(keyRepo),
		TemplateRepo:    templateRepo,
		CandidateRepo:   candidateRepo,
		RequestLogRepo:  requestLogRepo,
		ProfileRepo:     profileRepo,
		Logger:          log,
		Mode:            "test",
		AdminToken:      testAdminToken,
		CORS:            middleware.CORSConfig{AllowAllOrigins: true},
	}

	return &testEnv{
		router:         SetupRouter(deps),
		db:             db,
		templateRepo:   templateRepo,
		candidateRepo:  candidateRepo,
		requestLogRepo: requestLogRepo,
		subRepo:        subRepo,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func bearer(t *testing.T, userID, email string) map[string]string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + signed}
}

func (e *testEnv) seedRequestLog(t *testing.T, userID, traceID string) {
	t.Helper()
	err := e.requestLogRepo.Create(context.Background(), &domain.RequestLog{
		ID:           uuid.New().String(),
		TraceID:      traceID,
		UserID:       userID,
		Prompt:       "deploy on friday",
		Language:     "en",
		SafetyMode:   string(domain.SafetyStandard),
		NumRequested: 2,
		NumReturned:  2,
		Status:       domain.RequestStatusOK,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed request log: %v", err)
	}
}

func TestHealthAndPing(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Errorf("health status field = %v, want ok", body["status"])
	}

	w = env.request(t, http.MethodGet, "/api/v1/ping", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ping status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["message"] != "pong" {
		t.Errorf("ping message = %v, want pong", body["message"])
	}
	if body["timestamp"] == "" || body["timestamp"] == nil {
		t.Error("ping timestamp missing")
	}

	// Preflight requests short-circuit in the CORS middleware.
	w = env.request(t, http.MethodOptions, "/api/v1/ping", nil, map[string]string{"Origin": "https://memeforge.dev"})
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		headers   map[string]string
		wantError string
	}{
		{
			name:      "no credentials",
			headers:   nil,
			wantError: "Authentication required. Provide 'Authorization: Bearer <token>' or 'X-API-KEY' header",
		},
		{
			name:      "garbage bearer token",
			headers:   map[string]string{"Authorization": "Bearer not-a-jwt"},
			wantError: "Invalid or expired token",
		},
		{
			name:      "unknown api key",
			headers:   map[string]string{"X-API-KEY": "mf_does_not_exist"},
			wantError: "Invalid or expired API key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodGet, "/api/v1/limits", nil, tt.headers)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if body := decodeBody(t, w); body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := bearer(t, "user-keys", "keys@example.com")

	w := env.request(t, http.MethodPost, "/api/v1/keys", map[string]string{"name": "ci"}, owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("mint status = %d, body %s", w.Code, w.Body.String())
	}
	minted := decodeBody(t, w)
	raw, _ := minted["api_key"].(string)
	if raw == "" {
		t.Fatal("minted response has no api_key")
	}
	keyMeta, _ := minted["key"].(map[string]interface{})
	if keyMeta == nil {
		t.Fatal("minted response has no key metadata")
	}
	prefix, _ := keyMeta["key_prefix"].(string)
	if prefix == "" || !strings.HasPrefix(raw, prefix) {
		t.Errorf("key_prefix %q is not a prefix of the raw key", prefix)
	}
	if _, ok := keyMeta["key_hash"]; ok {
		t.Error("key metadata leaks the key hash")
	}
	keyID, _ := keyMeta["id"].(string)

	w = env.request(t, http.MethodGet, "/api/v1/keys", nil, owner)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["total"] != float64(1) {
		t.Errorf("list total = %v, want 1", body["total"])
	}

	// The raw key works as an X-API-KEY credential.
	w = env.request(t, http.MethodGet, "/api/v1/limits", nil, map[string]string{"X-API-KEY": raw})
	if w.Code != http.StatusOK {
		t.Fatalf("limits via api key status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodDelete, "/api/v1/keys/"+keyID, nil, owner)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, "/api/v1/limits", nil, map[string]string{"X-API-KEY": raw})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("revoked key status = %d, want 401", w.Code)
	}

	w = env.request(t, http.MethodDelete, "/api/v1/keys/"+uuid.New().String(), nil, owner)
	if w.Code != http.StatusNotFound {
		t.Errorf("revoke unknown key status = %d, want 404", w.Code)
	}
}

func TestLimitsReportingAndEnforcement(t *testing.T) {
	env := newTestEnv(t)
	user := bearer(t, "user-limits", "limits@example.com")

	w := env.request(t, http.MethodGet, "/api/v1/limits", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("limits status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["tier"] != "free" || body["limit_value"] != float64(2) || body["used_today"] != float64(0) {
		t.Errorf("fresh limits = %v", body)
	}

	env.seedRequestLog(t, "user-limits", uuid.New().String())
	env.seedRequestLog(t, "user-limits", uuid.New().String())

	// Reporting stays 200 even when the quota is gone.
	w = env.request(t, http.MethodGet, "/api/v1/limits", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("capped limits status = %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["used_today"] != float64(2) || body["remaining"] != float64(0) {
		t.Errorf("capped limits = %v", body)
	}

	// Generation is refused with the structured 402 payload.
	w = env.request(t, http.MethodPost, "/api/v1/memes/generate", map[string]string{"prompt": "one more"}, user)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("generate status = %d, want 402, body %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	if body["code"] != "daily_limit_exceeded" {
		t.Errorf("402 code = %v", body["code"])
	}
	if body["tier"] != "free" || body["limit"] != float64(2) || body["used"] != float64(2) {
		t.Errorf("402 detail = %v", body)
	}
	if body["message"] != "Daily memes limit reached. Upgrade your plan or wait until reset." {
		t.Errorf("402 message = %v", body["message"])
	}
}

func TestGenerateRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	user := bearer(t, "user-invalid", "invalid@example.com")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "missing prompt", body: map[string]interface{}{"url": "https://example.com"}},
		{name: "bad tone", body: map[string]interface{}{"prompt": "x", "tone": "sarcastic"}},
		{name: "bad render size", body: map[string]interface{}{"prompt": "x", "render": map[string]interface{}{"size": 555}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/api/v1/memes/generate", tt.body, user)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestTraceReplay(t *testing.T) {
	env := newTestEnv(t)
	traceID := uuid.New().String()
	env.seedRequestLog(t, "user-owner", traceID)

	candidates := []*domain.MemeCandidate{
		{
			CandidateID:  uuid.New().String(),
			TraceID:      traceID,
			TemplateID:   "drake",
			TemplateName: "Drake Hotline Bling",
			Captions:     domain.StringArray{"reading docs", "guessing flags"},
			ImageURL:     "https://cdn.example.com/a.png",
			Rank:         1,
			CreatedAt:    time.Now().UTC(),
		},
		{
			CandidateID:  uuid.New().String(),
			TraceID:      traceID,
			TemplateID:   "fine",
			TemplateName: "This Is Fine",
			Captions:     domain.StringArray{"prod is down"},
			ImageURL:     "https://cdn.example.com/b.png",
			Rank:         2,
			CreatedAt:    time.Now().UTC(),
		},
	}
	if err := env.candidateRepo.CreateBatch(context.Background(), candidates); err != nil {
		t.Fatalf("failed to seed candidates: %v", err)
	}

	w := env.request(t, http.MethodGet, "/api/v1/memes/"+traceID, nil, bearer(t, "user-owner", "owner@example.com"))
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["trace_id"] != traceID {
		t.Errorf("trace_id = %v, want %s", body["trace_id"], traceID)
	}
	if got, _ := body["candidates"].([]interface{}); len(got) != 2 {
		t.Errorf("candidates = %d, want 2", len(got))
	}

	w = env.request(t, http.MethodGet, "/api/v1/memes/"+traceID, nil, bearer(t, "user-other", "other@example.com"))
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign trace status = %d, want 403", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/memes/"+uuid.New().String(), nil, bearer(t, "user-owner", "owner@example.com"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown trace status = %d, want 404", w.Code)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := bearer(t, "user-templates", "tpl@example.com")

	seed := []*domain.Template{
		{
			TemplateID: "drake",
			Name:       "Drake Hotline Bling",
			Format:     domain.FormatTwoPanel,
			Tags:       domain.StringArray{"classic", "choice"},
			Popularity: 90,
		},
		{
			TemplateID: "fine",
			Name:       "This Is Fine",
			Format:     domain.FormatSingle,
			Tags:       domain.StringArray{"classic"},
			Popularity: 80,
		},
	}
	for _, tpl := range seed {
		if err := env.templateRepo.Upsert(context.Background(), tpl); err != nil {
			t.Fatalf("failed to seed template %s: %v", tpl.TemplateID, err)
		}
	}

	w := env.request(t, http.MethodGet, "/api/v1/templates", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["total"] != float64(2) {
		t.Errorf("list total = %v, want 2", body["total"])
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates?format=two-panel", nil, user)
	if body := decodeBody(t, w); body["total"] != float64(1) {
		t.Errorf("format filter total = %v, want 1", body["total"])
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates?tag=choice", nil, user)
	if body := decodeBody(t, w); body["total"] != float64(1) {
		t.Errorf("tag filter total = %v, want 1", body["total"])
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates?format=panorama", nil, user)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d, want 400", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates/drake", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["name"] != "Drake Hotline Bling" {
		t.Errorf("get name = %v", body["name"])
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates/missing", nil, user)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing template status = %d, want 404", w.Code)
	}
}

func TestReferralFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := bearer(t, "user-alice", "alice@example.com")
	bob := bearer(t, "user-bob", "bob@example.com")

	w := env.request(t, http.MethodGet, "/api/v1/referrals/code", nil, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("code status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	code, _ := body["referral_code"].(string)
	if len(code) != 8 {
		t.Fatalf("referral code = %q, want 8 characters", code)
	}
	if body["referrer_id"] != nil {
		t.Errorf("fresh referrer_id = %v, want null", body["referrer_id"])
	}

	w = env.request(t, http.MethodPost, "/api/v1/referrals/apply", map[string]string{"referral_code": code}, bob)
	if w.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["message"] != "Referral code applied successfully" {
		t.Errorf("apply message = %v", body["message"])
	}

	// Bob now shows Alice as his referrer; Alice's count went up.
	w = env.request(t, http.MethodGet, "/api/v1/referrals/code", nil, bob)
	if body := decodeBody(t, w); body["referrer_id"] != "user-alice" {
		t.Errorf("bob's referrer_id = %v, want user-alice", body["referrer_id"])
	}
	w = env.request(t, http.MethodGet, "/api/v1/referrals/code", nil, alice)
	if body := decodeBody(t, w); body["referral_count"] != float64(1) {
		t.Errorf("alice's referral_count = %v, want 1", body["referral_count"])
	}

	tests := []struct {
		name       string
		headers    map[string]string
		code       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "already referred",
			headers:    bob,
			code:       code,
			wantStatus: http.StatusBadRequest,
			wantError:  "User already has a referrer",
		},
		{
			name:       "self referral",
			headers:    alice,
			code:       code,
			wantStatus: http.StatusBadRequest,
			wantError:  "Cannot refer yourself",
		},
		{
			name:       "unknown code",
			headers:    bearer(t, "user-carol", "carol@example.com"),
			code:       "NOPE1234",
			wantStatus: http.StatusNotFound,
			wantError:  "Invalid referral code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/api/v1/referrals/apply", map[string]string{"referral_code": tt.code}, tt.headers)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if body := decodeBody(t, w); body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestBillingSubscriptionEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/billing/subscription", nil, bearer(t, "user-free", "free@example.com"))
	if w.Code != http.StatusOK {
		t.Fatalf("subscription status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["subscription_tier"] != domain.TierFree || body["is_active"] != false {
		t.Errorf("free subscription = %v", body)
	}

	err := env.subRepo.Upsert(context.Background(), &domain.Subscription{
		ID:                 uuid.New().String(),
		UserID:             "user-paid",
		Tier:               domain.TierPlus,
		IsActive:           true,
		AutoRenew:          true,
		CurrentPeriodUsage: 7,
		IncludedUnits:      4,
	})
	if err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}

	w = env.request(t, http.MethodGet, "/api/v1/billing/subscription", nil, bearer(t, "user-paid", "paid@example.com"))
	body = decodeBody(t, w)
	if body["subscription_tier"] != domain.TierPlus || body["is_active"] != true {
		t.Errorf("paid subscription = %v", body)
	}
	usage, _ := body["usage"].(map[string]interface{})
	if usage == nil || usage["overage_units"] != float64(3) {
		t.Errorf("usage = %v, want overage 3", usage)
	}
}

func TestWebhookSkipsAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	// No auth headers at all: a bad signature must yield the billing 400,
	// not the middleware 401.
	w := env.request(t, http.MethodPost, "/api/v1/billing/webhook", map[string]string{"type": "noise"},
		map[string]string{"Stripe-Signature": "t=0,v1=deadbeef"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("webhook status = %d, want 400, body %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["error"] != "Invalid signature" {
		t.Errorf("webhook error = %v", body["error"])
	}
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)

	if err := env.templateRepo.Upsert(context.Background(), &domain.Template{
		TemplateID: "drake",
		Name:       "Drake Hotline Bling",
		Format:     domain.FormatTwoPanel,
	}); err != nil {
		t.Fatalf("failed to seed template: %v", err)
	}
	traceID := uuid.New().String()
	env.seedRequestLog(t, "user-admin", traceID)
	if err := env.candidateRepo.CreateBatch(context.Background(), []*domain.MemeCandidate{{
		CandidateID: uuid.New().String(),
		TraceID:     traceID,
		TemplateID:  "drake",
		Rank:        1,
		CreatedAt:   time.Now().UTC(),
	}}); err != nil {
		t.Fatalf("failed to seed candidate: %v", err)
	}

	w := env.request(t, http.MethodGet, "/api/v1/admin/stats", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/admin/stats", nil, map[string]string{"X-Admin-Token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/admin/stats", nil, map[string]string{"X-Admin-Token": testAdminToken})
	if w.Code != http.StatusOK {
		t.Fatalf("admin stats status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["templates"] != float64(1) || body["candidates"] != float64(1) || body["requests"] != float64(1) {
		t.Errorf("admin stats = %v", body)
	}
}
