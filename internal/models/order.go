package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус платёжного ордера.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsTerminal сообщает, является ли статус конечным.
// Из конечного статуса переходы запрещены.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderDirection определяет направление движения средств.
type OrderDirection string

const (
	OrderDirectionDeposit    OrderDirection = "deposit"
	OrderDirectionWithdrawal OrderDirection = "withdrawal"
)

// merchantOrderPrefix - префикс merchant order id в протоколе Pay247.
const merchantOrderPrefix = "PAY247"

// MerchantOrderID детерминированно выводит merchant order id из
// внутреннего идентификатора. Это значение уходит процессингу и служит
// ключом корреляции входящих webhook.
func MerchantOrderID(direction OrderDirection, id uuid.UUID) string {
	tag := "DEP"
	if direction == OrderDirectionWithdrawal {
		tag = "WDR"
	}
	return merchantOrderPrefix + "_" + tag + "_" + id.String()
}

// ProviderResponse - версионированный конверт для ответов процессинга.
// Тег схемы позволяет потребителям распознавать известные формы payload
// и явно отказывать на неизвестных.
type ProviderResponse struct {
	Schema  string          `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

// Order представляет депозитный или выводной ордер.
type Order struct {
	ID              uuid.UUID         `db:"id"`
	UserID          uuid.UUID         `db:"user_id"`
	Direction       OrderDirection    `db:"direction"`
	MerchantOrderID string            `db:"merchant_order_id"`
	ExternalOrderID *string           `db:"external_order_id"`
	Amount          decimal.Decimal   `db:"amount"`
	Currency        string            `db:"currency"`
	Method          string            `db:"method"`
	PayoutDetails   map[string]string `db:"payout_details"`
	Status          OrderStatus       `db:"status"`
	FailureReason   *string           `db:"failure_reason"`
	ExternalTxRef   *string           `db:"external_tx_ref"`
	PaymentURL      *string           `db:"payment_url"`
	ProviderResp    *ProviderResponse `db:"provider_response"`
	WebhookTrail    []json.RawMessage `db:"webhook_trail"`
	CreatedAt       time.Time         `db:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at"`
}

// CreateDepositRequest - запрос на создание депозита.
type CreateDepositRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	ReturnURL string `json:"return_url,omitempty"`
}

// CreateWithdrawalRequest - запрос на создание вывода.
type CreateWithdrawalRequest struct {
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	Method         string            `json:"method"`
	AccountDetails map[string]string `json:"account_details"`
}

// DepositCreatedResponse - ответ на создание депозита.
type DepositCreatedResponse struct {
	OrderID         uuid.UUID `json:"order_id"`
	MerchantOrderID string    `json:"merchant_order_id"`
	ExternalOrderID string    `json:"external_order_id"`
	PaymentURL      string    `json:"payment_url"`
}

// WithdrawalCreatedResponse - ответ на создание вывода.
type WithdrawalCreatedResponse struct {
	WithdrawalID    uuid.UUID `json:"withdrawal_id"`
	MerchantOrderID string    `json:"merchant_order_id"`
	ExternalOrderID string    `json:"external_order_id"`
	Status          string    `json:"status"`
}

// OrderStatusResponse - ответ диагностического запроса статуса.
type OrderStatusResponse struct {
	MerchantOrderID string `json:"merchant_order_id"`
	Status          string `json:"status"`
	GatewayStatus   string `json:"gateway_status,omitempty"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// OrderListItem - элемент списка ордеров пользователя.
type OrderListItem struct {
	MerchantOrderID string `json:"merchant_order_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Method          string `json:"method"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}
