package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/eegluit-cloud/neonplay-paygate/internal/services"
	"github.com/labstack/echo/v4"
)

// WebhookHandler принимает callback процессинга. Транспортный статус
// всегда 200: процессинг ретраит по телу ответа, а не по HTTP-коду,
// и не должен заваливать нас повторами из-за наших 5xx.
type WebhookHandler struct {
	service services.ReconciliationService
	logger  *log.Logger
}

// NewWebhookHandler создаёт новый handler.
func NewWebhookHandler(service services.ReconciliationService, logger *log.Logger) *WebhookHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookHandler{service: service, logger: logger}
}

// Deposit обрабатывает POST /api/webhook/deposit.
func (h *WebhookHandler) Deposit(c echo.Context) error {
	return h.handle(c, models.OrderDirectionDeposit)
}

// Withdrawal обрабатывает POST /api/webhook/withdrawal.
func (h *WebhookHandler) Withdrawal(c echo.Context) error {
	return h.handle(c, models.OrderDirectionWithdrawal)
}

func (h *WebhookHandler) handle(c echo.Context, direction models.OrderDirection) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Printf("webhook %s: failed to read body from %s: %v", direction, c.RealIP(), err)
		return c.JSON(http.StatusOK, models.WebhookAck{Code: 500, Msg: "read body failed"})
	}

	// Подпись проверяется по исходным полям, поэтому тело разбирается
	// в map до какой-либо типизации. Неразборчивый callback тоже
	// фиксируется в логе: каждая попытка доставки должна быть видна.
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		h.logger.Printf("webhook %s: malformed payload from %s: %v", direction, c.RealIP(), err)
		return c.JSON(http.StatusOK, models.WebhookAck{Code: 500, Msg: "malformed payload"})
	}

	err = h.service.HandleWebhook(c.Request().Context(), direction, params, raw, c.RealIP())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, models.WebhookAck{Code: 0, Msg: "success"})
	case errors.Is(err, services.ErrSignatureInvalid), errors.Is(err, services.ErrUnauthorizedSource):
		// код 401 в теле отличим для алертинга на стороне процессинга
		return c.JSON(http.StatusOK, models.WebhookAck{Code: 401, Msg: "authentication failed"})
	default:
		return c.JSON(http.StatusOK, models.WebhookAck{Code: 500, Msg: "processing failed"})
	}
}
