package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/custodia-pay/custodia_pay/internal/identity"
)

// RegisterIdentityRoutes wires account onboarding endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}
