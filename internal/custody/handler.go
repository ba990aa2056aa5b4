package custody

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-pay/custodia_pay/internal/ledger"
	"github.com/custodia-pay/custodia_pay/internal/numeric"
)

// Handler exposes the custody HTTP endpoints. The acting account is always the
// authenticated subject placed in locals by the JWT middleware.
type Handler struct {
	service *Service
}

// NewHandler constructs a custody handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// DepositNative credits native value to the caller's account.
func (h *Handler) DepositNative(c *fiber.Ctx) error {
	account, err := callerAccount(c)
	if err != nil {
		return err
	}
	amount, _, err := parseDeposit(c)
	if err != nil {
		return err
	}

	outcome, err := h.service.DepositNative(c.UserContext(), account, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toOperationResponse(outcome))
}

// DepositToken pulls token value into custody for the caller's account.
func (h *Handler) DepositToken(c *fiber.Ctx) error {
	account, err := callerAccount(c)
	if err != nil {
		return err
	}
	amount, req, err := parseDeposit(c)
	if err != nil {
		return err
	}

	outcome, err := h.service.DepositToken(c.UserContext(), account, req.Source, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toOperationResponse(outcome))
}

// WithdrawNative sends native value out of custody.
func (h *Handler) WithdrawNative(c *fiber.Ctx) error {
	account, err := callerAccount(c)
	if err != nil {
		return err
	}
	amount, req, err := parseWithdraw(c)
	if err != nil {
		return err
	}

	outcome, err := h.service.WithdrawNative(c.UserContext(), account, req.Destination, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toOperationResponse(outcome))
}

// WithdrawToken pushes token value out of custody.
func (h *Handler) WithdrawToken(c *fiber.Ctx) error {
	account, err := callerAccount(c)
	if err != nil {
		return err
	}
	amount, req, err := parseWithdraw(c)
	if err != nil {
		return err
	}

	outcome, err := h.service.WithdrawToken(c.UserContext(), account, req.Destination, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toOperationResponse(outcome))
}

// Transfer moves custodied native balance to another account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	account, err := callerAccount(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := numeric.ParseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.service.TransferNative(c.UserContext(), account, req.ToAccount, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(TransferResponse{
		OperationID: outcome.OperationID,
		FromBalance: outcome.FromBalance.String(),
		CompletedAt: outcome.CompletedAt.Format(time.RFC3339Nano),
	})
}

// Balances returns both asset balances for the caller's account.
func (h *Handler) Balances(c *fiber.Ctx) error {
	account, err := callerAccount(c)
	if err != nil {
		return err
	}
	balances, err := h.service.Balances(c.UserContext(), account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(BalancesResponse{
		Account: account,
		Native:  balances.Native.String(),
		Token:   balances.Token.String(),
	})
}

// AccountBalances returns both asset balances for any account. Reads never
// fail: unknown accounts report zeros.
func (h *Handler) AccountBalances(c *fiber.Ctx) error {
	account := c.Params("account")
	if account == "" {
		return fiber.NewError(http.StatusBadRequest, "account is required")
	}
	balances, err := h.service.Balances(c.UserContext(), account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(BalancesResponse{
		Account: account,
		Native:  balances.Native.String(),
		Token:   balances.Token.String(),
	})
}

// Convert reports the reference-currency value of a native amount at the
// current oracle rate.
func (h *Handler) Convert(c *fiber.Ctx) error {
	amount, err := numeric.ParseAmount(c.Query("amount"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := h.service.ConvertToReference(c.UserContext(), amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(ConvertResponse{
		Amount:    amount.String(),
		Value:     value.String(),
		Reference: numeric.FormatReference(value),
	})
}

func callerAccount(c *fiber.Ctx) (string, error) {
	account, _ := c.Locals("user_id").(string)
	if account == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "missing authenticated account")
	}
	return account, nil
}

func parseDeposit(c *fiber.Ctx) (*big.Int, DepositRequest, error) {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, req, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := numeric.ParseAmount(req.Amount)
	if err != nil {
		return nil, req, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return amount, req, nil
}

func parseWithdraw(c *fiber.Ctx) (*big.Int, WithdrawRequest, error) {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, req, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := numeric.ParseAmount(req.Amount)
	if err != nil {
		return nil, req, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return amount, req, nil
}

func toOperationResponse(outcome Outcome) OperationResponse {
	return OperationResponse{
		OperationID:      outcome.OperationID,
		Balance:          outcome.Balance.String(),
		GatewayReference: outcome.GatewayReference,
		CompletedAt:      outcome.CompletedAt.Format(time.RFC3339Nano),
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCapExceeded):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrWithdrawalInProgress):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTransferFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrOracleUnavailable), errors.Is(err, ErrOracleRate):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ledger.ErrDuplicateOperation):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}
