package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletAccount - баланс пользователя в отдельной валюте.
// Каждая мутация баланса обязана читать version и писать с условием
// на прочитанное значение, увеличивая его; слепая запись запрещена.
type WalletAccount struct {
	ID        uuid.UUID       `db:"id"`
	UserID    uuid.UUID       `db:"user_id"`
	Currency  string          `db:"currency"`
	Balance   decimal.Decimal `db:"balance"`
	Version   int64           `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// TransactionType - тип проводки в леджере.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeBonus      TransactionType = "bonus"
)

// Transaction - неизменяемая запись об изменении баланса
// со снимком до/после и ссылкой на породивший ордер.
type Transaction struct {
	ID            uuid.UUID       `db:"id"`
	UserID        uuid.UUID       `db:"user_id"`
	OrderID       uuid.UUID       `db:"order_id"`
	Type          TransactionType `db:"type"`
	Currency      string          `db:"currency"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	ExternalRef   *string         `db:"external_ref"`
	CreatedAt     time.Time       `db:"created_at"`
}
