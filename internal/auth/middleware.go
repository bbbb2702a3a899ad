package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/domain"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and stores the operator as the request actor.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	subject := claims.Subject
	name := claims.Name
	if name == "" {
		name = subject
	}
	c.Locals(actorKey, &Principal{
		Actor: domain.Actor{ID: &subject, Name: name, Type: domain.ActorTypeAdmin},
		Role:  claims.Role,
	})
	return c.Next()
}

// RequireAdmin rejects authenticated callers without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != RoleAdmin {
			return apperrors.NewForbidden("admin role required")
		}
		return c.Next()
	}
}

// Principal represents the authenticated operator.
type Principal struct {
	Actor domain.Actor
	Role  string
}

// PrincipalFromContext retrieves the authenticated operator.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(actorKey).(*Principal)
	return principal, ok && principal != nil
}

// ActorFromContext returns the operator as a history actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, false
	}
	return principal.Actor, true
}
