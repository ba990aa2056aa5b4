package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/custodia-pay/custodia_pay/internal/auth"
)

// RegisterAuthRoutes wires login and token refresh endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	r.Post("/auth/login", rateLimiter, h.Login)
	r.Post("/auth/refresh", h.Refresh)
}
