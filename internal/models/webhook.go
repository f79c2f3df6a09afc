package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookRecord - журнальная запись о входящем callback от процессинга.
// Создаётся до любых побочных эффектов и служит защитой от повторной
// обработки; после создания изменяется только флаг processed и ошибка.
type WebhookRecord struct {
	ID             uuid.UUID `db:"id"`
	IdempotencyKey string    `db:"idempotency_key"`
	Channel        string    `db:"channel"`
	Payload        []byte    `db:"payload"`
	Signature      string    `db:"signature"`
	SourceIP       string    `db:"source_ip"`
	Processed      bool      `db:"processed"`
	ProcessError   *string   `db:"process_error"`
	ReceivedAt     time.Time `db:"received_at"`
	ProcessedAt    *time.Time `db:"processed_at"`
}

// WebhookNotification - разобранный payload callback.
// Оба канала (депозиты и выводы) шлют одинаковый набор полей,
// различаясь регистром статуса.
type WebhookNotification struct {
	MerchantID      string `json:"merchantId"`
	OrderID         string `json:"orderId"`
	MerchantOrderID string `json:"merchantOrderId"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	Method          string `json:"payMethod"`
	Fee             string `json:"fee,omitempty"`
	ErrorMsg        string `json:"errorMsg,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
	PaidAt          int64  `json:"paidAt"`
	Sign            string `json:"sign"`
}

// WebhookAck - тело ответа процессингу. Транспортный статус всегда 200,
// логический результат передаётся кодом.
type WebhookAck struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
