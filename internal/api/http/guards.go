package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fieldsight/core-service/internal/auth"
	"github.com/fieldsight/core-service/internal/events"
	"github.com/fieldsight/core-service/internal/observability"
	"github.com/fieldsight/core-service/internal/ratelimit"
	apperrors "github.com/fieldsight/core-service/pkg/util/errorutil"
)

// IdentityRateGuard throttles the two unauthenticated auth endpoints by
// client address. Login and registration budgets live in distinct
// keyspaces so exhausting one does not block the other.
type IdentityRateGuard struct {
	login         *ratelimit.Limiter
	register      *ratelimit.Limiter
	loginLimit    int
	registerLimit int
	metrics       *observability.Metrics
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NewIdentityRateGuard constructs the guard with independent limiters per
// endpoint.
func NewIdentityRateGuard(login, register *ratelimit.Limiter, loginLimit, registerLimit int, metrics *observability.Metrics, dispatcher events.Dispatcher, logger *zap.Logger) *IdentityRateGuard {
	return &IdentityRateGuard{
		login:         login,
		register:      register,
		loginLimit:    loginLimit,
		registerLimit: registerLimit,
		metrics:       metrics,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Handle short-circuits the pipeline with a rate-limit failure when the
// caller's budget for the target endpoint is exhausted.
func (g *IdentityRateGuard) Handle(c *fiber.Ctx) error {
	path := c.Path()

	var limiter *ratelimit.Limiter
	var limit int
	switch {
	case strings.HasPrefix(path, "/api/v1/auth/login"):
		limiter, limit = g.login, g.loginLimit
	case strings.HasPrefix(path, "/api/v1/auth/register"):
		limiter, limit = g.register, g.registerLimit
	default:
		return c.Next()
	}

	clientIP := resolveClientIP(c)
	if !limiter.TryConsume(clientIP, limit) {
		if g.metrics != nil {
			g.metrics.RecordRateLimitDenial("identity")
		}
		if g.dispatcher != nil {
			_ = g.dispatcher.Publish(c.UserContext(), events.New(events.EventRateLimitExceeded, nil, nil,
				events.RateLimitExceededPayload{Guard: "identity", Key: clientIP, Path: path}))
		}
		g.logger.Warn("identity rate limit exceeded",
			zap.String("client_ip", clientIP),
			zap.String("path", path))
		return apperrors.NewRateLimitExceeded(
			"Rate limit exceeded. Try again later.",
			int(limiter.RetryAfter().Seconds()),
		)
	}
	return c.Next()
}

// TenantRateGuard throttles authenticated traffic by tenant id with a
// single shared budget across all endpoints. It runs after the token
// authentication stage; anonymous requests bypass it entirely.
type TenantRateGuard struct {
	limiter    *ratelimit.Limiter
	limit      int
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewTenantRateGuard constructs the guard.
func NewTenantRateGuard(limiter *ratelimit.Limiter, limit int, metrics *observability.Metrics, dispatcher events.Dispatcher, logger *zap.Logger) *TenantRateGuard {
	return &TenantRateGuard{limiter: limiter, limit: limit, metrics: metrics, dispatcher: dispatcher, logger: logger}
}

// Handle charges the tenant's budget for authenticated requests.
func (g *TenantRateGuard) Handle(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantIDFromContext(c)
	if !ok {
		return c.Next()
	}

	if !g.limiter.TryConsume(tenantID.String(), g.limit) {
		if g.metrics != nil {
			g.metrics.RecordRateLimitDenial("tenant")
		}
		if g.dispatcher != nil {
			_ = g.dispatcher.Publish(c.UserContext(), events.New(events.EventRateLimitExceeded, &tenantID, nil,
				events.RateLimitExceededPayload{Guard: "tenant", Key: tenantID.String(), Path: c.Path()}))
		}
		g.logger.Warn("tenant rate limit exceeded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("path", c.Path()))
		return apperrors.NewRateLimitExceeded(
			"Tenant rate limit exceeded. Try again later.",
			int(g.limiter.RetryAfter().Seconds()),
		)
	}
	return c.Next()
}

// resolveClientIP prefers the first entry of X-Forwarded-For, falling back
// to the socket address.
func resolveClientIP(c *fiber.Ctx) string {
	forwarded := c.Get(fiber.HeaderXForwardedFor)
	if forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx != -1 {
			forwarded = forwarded[:idx]
		}
		if ip := strings.TrimSpace(forwarded); ip != "" {
			// Copy out of fasthttp's reused request buffer: the key is
			// stored in the limiter map beyond this request's lifetime.
			return strings.Clone(ip)
		}
	}
	return strings.Clone(c.IP())
}
