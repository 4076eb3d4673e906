package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fieldsight/core-service/internal/observability"
)

// Middleware resolves the caller's identity from a bearer token. It is
// best-effort: a missing, malformed, expired, or wrong-kind token degrades
// the request to anonymous instead of rejecting it. Downstream authorization
// decides whether an anonymous caller may reach the target endpoint.
type Middleware struct {
	tokens  *TokenManager
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMiddleware constructs the authentication stage.
func NewMiddleware(tokens *TokenManager, metrics *observability.Metrics, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, metrics: metrics, logger: logger}
}

// Handle parses the Authorization header and, when it carries a valid
// access token, populates the request's Principal.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	token := extractBearerToken(c)
	if token == "" {
		return m.anonymous(c)
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		// Invalid tokens are treated the same as absent ones here.
		m.logger.Debug("rejected bearer token", zap.Error(err), zap.String("path", c.Path()))
		return m.anonymous(c)
	}
	if claims.Kind != TokenKindAccess {
		// A refresh token must never be accepted where an access token
		// is required.
		m.logger.Debug("non-access token on request", zap.String("kind", string(claims.Kind)))
		return m.anonymous(c)
	}

	userID, err := claims.UserID()
	if err != nil {
		return m.anonymous(c)
	}
	tenantID, err := claims.Tenant()
	if err != nil {
		return m.anonymous(c)
	}

	SetPrincipal(c, &Principal{
		UserID:   userID,
		TenantID: tenantID,
		Email:    claims.Email,
		Role:     claims.Role,
	})
	m.metrics.RecordAuthOutcome("authenticated")
	return c.Next()
}

func (m *Middleware) anonymous(c *fiber.Ctx) error {
	m.metrics.RecordAuthOutcome("anonymous")
	return c.Next()
}

// extractBearerToken accepts only the bearer scheme; any other scheme or
// an absent header is treated as no token.
func extractBearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
