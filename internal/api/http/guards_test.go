package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldsight/core-service/internal/auth"
	"github.com/fieldsight/core-service/internal/config"
	"github.com/fieldsight/core-service/internal/domain"
	"github.com/fieldsight/core-service/internal/observability"
	"github.com/fieldsight/core-service/internal/ratelimit"
)

type testPipeline struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

// newTestPipeline assembles the full request pipeline over stub handlers
// with small budgets so tests can exhaust them quickly.
func newTestPipeline(t *testing.T, loginLimit, registerLimit, tenantLimit int) *testPipeline {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("pipeline-test-secret", time.Hour, 24*time.Hour)

	window := time.Minute
	loginLimiter := ratelimit.NewLimiter(window)
	registerLimiter := ratelimit.NewLimiter(window)
	tenantLimiter := ratelimit.NewLimiter(window)

	identityGuard := NewIdentityRateGuard(loginLimiter, registerLimiter, loginLimit, registerLimit, metrics, nil, logger)
	tenantGuard := NewTenantRateGuard(tenantLimiter, tenantLimit, metrics, nil, logger)
	authStage := auth.NewMiddleware(tokens, metrics, logger)

	app := fiber.New()
	pipeline := NewPipeline(PipelineConfig{
		Logger:        logger,
		Metrics:       metrics,
		CORS:          config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		IdentityGuard: identityGuard,
		AuthStage:     authStage,
		TenantGuard:   tenantGuard,
	})
	pipeline.Apply(app)

	ok := func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) }
	app.Post("/api/v1/auth/login", ok)
	app.Post("/api/v1/auth/register", ok)
	app.Get("/api/v1/violations", ok)

	return &testPipeline{app: app, tokens: tokens, metrics: metrics}
}

func (p *testPipeline) request(t *testing.T, method, path, clientIP, bearer string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := p.app.Test(req)
	require.NoError(t, err)
	return resp
}

func (p *testPipeline) accessToken(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	token, _, err := p.tokens.GenerateAccessToken(uuid.New(), tenantID, "u@x.com", domain.RoleAdmin)
	require.NoError(t, err)
	return token
}

func TestIdentityRateGuardDeniesBeyondLimit(t *testing.T) {
	p := newTestPipeline(t, 2, 5, 100)

	for i := 0; i < 2; i++ {
		resp := p.request(t, http.MethodPost, "/api/v1/auth/login", "10.0.0.1", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := p.request(t, http.MethodPost, "/api/v1/auth/login", "10.0.0.1", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/problem+json")

	var problem struct {
		Type              string `json:"type"`
		Title             string `json:"title"`
		Status            int    `json:"status"`
		Detail            string `json:"detail"`
		RetryAfterSeconds int    `json:"retryAfterSeconds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	resp.Body.Close()
	assert.Equal(t, "Too Many Requests", problem.Title)
	assert.Equal(t, http.StatusTooManyRequests, problem.Status)
	assert.Equal(t, 60, problem.RetryAfterSeconds)
	assert.NotEmpty(t, problem.Type)
	assert.NotEmpty(t, problem.Detail)

	assert.Equal(t, int64(1), p.metrics.RateLimitDenials("identity"))
}

func TestIdentityRateGuardKeyspacesAreIndependent(t *testing.T) {
	p := newTestPipeline(t, 1, 1, 100)

	resp := p.request(t, http.MethodPost, "/api/v1/auth/login", "10.0.0.1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = p.request(t, http.MethodPost, "/api/v1/auth/login", "10.0.0.1", "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// An exhausted login budget must not block registration from the
	// same address.
	resp = p.request(t, http.MethodPost, "/api/v1/auth/register", "10.0.0.1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A different address has its own login budget.
	resp = p.request(t, http.MethodPost, "/api/v1/auth/login", "10.0.0.2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIdentityRateGuardIgnoresOtherEndpoints(t *testing.T) {
	p := newTestPipeline(t, 1, 1, 100)

	for i := 0; i < 5; i++ {
		resp := p.request(t, http.MethodGet, "/api/v1/violations", "10.0.0.1", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestTenantRateGuardDeniesBeyondLimit(t *testing.T) {
	p := newTestPipeline(t, 100, 100, 2)
	tenantID := uuid.New()
	token := p.accessToken(t, tenantID)

	for i := 0; i < 2; i++ {
		resp := p.request(t, http.MethodGet, "/api/v1/violations", "", token)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := p.request(t, http.MethodGet, "/api/v1/violations", "", token)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, int64(1), p.metrics.RateLimitDenials("tenant"))
}

func TestTenantRateGuardIsolatesTenants(t *testing.T) {
	p := newTestPipeline(t, 100, 100, 1)
	tokenA := p.accessToken(t, uuid.New())
	tokenB := p.accessToken(t, uuid.New())

	resp := p.request(t, http.MethodGet, "/api/v1/violations", "", tokenA)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = p.request(t, http.MethodGet, "/api/v1/violations", "", tokenA)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Tenant A exhausting its budget must not affect tenant B.
	resp = p.request(t, http.MethodGet, "/api/v1/violations", "", tokenB)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTenantRateGuardBypassesAnonymous(t *testing.T) {
	p := newTestPipeline(t, 100, 100, 1)

	// Anonymous requests carry no tenant and are never charged.
	for i := 0; i < 5; i++ {
		resp := p.request(t, http.MethodGet, "/api/v1/violations", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestTenantRateGuardIgnoresRefreshTokens(t *testing.T) {
	p := newTestPipeline(t, 100, 100, 1)
	refresh, _, err := p.tokens.GenerateRefreshToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	// A refresh token never authenticates a request, so the tenant
	// budget is never charged.
	for i := 0; i < 5; i++ {
		resp := p.request(t, http.MethodGet, "/api/v1/violations", "", refresh)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
