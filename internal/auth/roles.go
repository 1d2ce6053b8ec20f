package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// RequireCustomer admits only authenticated customers.
func RequireCustomer() fiber.Handler {
	return requireRole(domain.RoleCustomer, "customer role required")
}

// RequireAgent admits only authenticated agents.
func RequireAgent() fiber.Handler {
	return requireRole(domain.RoleAgent, "agent role required")
}

func requireRole(role domain.UserRole, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if user.Role != role {
			return apperrors.NewPermissionError(message)
		}
		return c.Next()
	}
}
