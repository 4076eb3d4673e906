package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fieldsight/core-service/internal/domain"
)

const principalKey = "auth_principal"

// Principal is the resolved identity of the caller. It is created once per
// request by the authentication stage and owned exclusively by that
// request. Fiber resets Locals before a pooled worker handles the next
// request, so identity cannot leak across requests.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	Role     domain.Role
}

// SetPrincipal attaches the resolved identity to the in-flight request.
func SetPrincipal(c *fiber.Ctx, p *Principal) {
	c.Locals(principalKey, p)
}

// PrincipalFromContext retrieves the authenticated identity, if any.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil
}

// TenantIDFromContext returns the tenant of the authenticated caller.
// The second return is false for anonymous requests.
func TenantIDFromContext(c *fiber.Ctx) (uuid.UUID, bool) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return uuid.Nil, false
	}
	return principal.TenantID, true
}
