package handlers

import (
	"errors"
	"net/http"

	"github.com/eegluit-cloud/neonplay-paygate/internal/auth"
	"github.com/eegluit-cloud/neonplay-paygate/internal/gateway"
	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/eegluit-cloud/neonplay-paygate/internal/services"
	"github.com/eegluit-cloud/neonplay-paygate/internal/storage"
	"github.com/eegluit-cloud/neonplay-paygate/internal/wallet"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// PaymentHandler обрабатывает создание депозитов и выводов
// и запросы статусов.
type PaymentHandler struct {
	service services.ReconciliationService
}

// NewPaymentHandler создаёт новый handler.
func NewPaymentHandler(service services.ReconciliationService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// CreateDeposit обрабатывает POST /api/payment/deposit.
func (h *PaymentHandler) CreateDeposit(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req models.CreateDepositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request format")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid amount")
	}

	resp, err := h.service.CreateDeposit(c.Request().Context(), userID, amount, req.Currency, req.Method, req.ReturnURL, c.RealIP())
	if err != nil {
		return mapPaymentError(err)
	}

	return c.JSON(http.StatusCreated, resp)
}

// CreateWithdrawal обрабатывает POST /api/payment/withdrawal.
func (h *PaymentHandler) CreateWithdrawal(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	var req models.CreateWithdrawalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request format")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid amount")
	}

	resp, err := h.service.CreateWithdrawal(c.Request().Context(), userID, amount, req.Currency, req.Method, req.AccountDetails)
	if err != nil {
		return mapPaymentError(err)
	}

	return c.JSON(http.StatusCreated, resp)
}

// DepositStatus обрабатывает GET /api/payment/deposit/:merchantOrderID/status.
func (h *PaymentHandler) DepositStatus(c echo.Context) error {
	return h.orderStatus(c, models.OrderDirectionDeposit)
}

// WithdrawalStatus обрабатывает GET /api/payment/withdrawal/:merchantOrderID/status.
func (h *PaymentHandler) WithdrawalStatus(c echo.Context) error {
	return h.orderStatus(c, models.OrderDirectionWithdrawal)
}

func (h *PaymentHandler) orderStatus(c echo.Context, direction models.OrderDirection) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	resp, err := h.service.OrderStatus(c.Request().Context(), userID, direction, c.Param("merchantOrderID"))
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, resp)
}

// ListDeposits обрабатывает GET /api/payment/deposits.
func (h *PaymentHandler) ListDeposits(c echo.Context) error {
	return h.listOrders(c, models.OrderDirectionDeposit)
}

// ListWithdrawals обрабатывает GET /api/payment/withdrawals.
func (h *PaymentHandler) ListWithdrawals(c echo.Context) error {
	return h.listOrders(c, models.OrderDirectionWithdrawal)
}

func (h *PaymentHandler) listOrders(c echo.Context, direction models.OrderDirection) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return err
	}

	items, err := h.service.ListOrders(c.Request().Context(), userID, direction)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if len(items) == 0 {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, items)
}

// GatewayBalance обрабатывает GET /api/payment/gateway/balance.
func (h *PaymentHandler) GatewayBalance(c echo.Context) error {
	if _, err := auth.GetUserIDFromContext(c); err != nil {
		return err
	}

	balances, err := h.service.GatewayBalances(c.Request().Context())
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, "gateway unavailable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, balances)
}

func mapPaymentError(err error) error {
	var rejection *gateway.RejectionError
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid amount")
	case errors.Is(err, wallet.ErrInvalidCurrency):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid currency")
	case errors.Is(err, wallet.ErrInvalidMethod):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid payment method")
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return echo.NewHTTPError(http.StatusPaymentRequired, "insufficient balance")
	case errors.As(err, &rejection):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, rejection.Message)
	case errors.Is(err, gateway.ErrUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, "gateway unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
