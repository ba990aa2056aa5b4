package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/custodia-pay/custodia_pay/internal/custody"
)

// RegisterCustodyRoutes wires the ledger endpoints for the authenticated account.
func RegisterCustodyRoutes(r fiber.Router, h *custody.Handler) {
	r.Post("/custody/deposits/native", h.DepositNative)
	r.Post("/custody/deposits/token", h.DepositToken)
	r.Post("/custody/withdrawals/native", h.WithdrawNative)
	r.Post("/custody/withdrawals/token", h.WithdrawToken)
	r.Post("/custody/transfers", h.Transfer)
	r.Get("/custody/balances", h.Balances)
	r.Get("/custody/accounts/:account/balances", h.AccountBalances)
	r.Get("/custody/convert", h.Convert)
}
