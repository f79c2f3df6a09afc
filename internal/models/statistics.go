package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatisticsScope - область агрегации счётчиков.
type StatisticsScope string

const (
	StatisticsScopeUser   StatisticsScope = "user"
	StatisticsScopeDay    StatisticsScope = "day"
	StatisticsScopeGlobal StatisticsScope = "global"
)

// PaymentStatistics - счётчики попыток/успехов/отказов и накопленные суммы.
// Обновляются best-effort и не являются источником истины.
type PaymentStatistics struct {
	Scope               StatisticsScope `db:"scope"`
	ScopeKey            string          `db:"scope_key"`
	DepositAttempts     int64           `db:"deposit_attempts"`
	DepositSuccesses    int64           `db:"deposit_successes"`
	DepositFailures     int64           `db:"deposit_failures"`
	DepositAmount       decimal.Decimal `db:"deposit_amount"`
	WithdrawalAttempts  int64           `db:"withdrawal_attempts"`
	WithdrawalSuccesses int64           `db:"withdrawal_successes"`
	WithdrawalFailures  int64           `db:"withdrawal_failures"`
	WithdrawalAmount    decimal.Decimal `db:"withdrawal_amount"`
}

// StatisticsUpdate - одно приращение счётчиков по итогу обработки webhook.
type StatisticsUpdate struct {
	UserID    uuid.UUID
	Direction OrderDirection
	Success   bool
	Amount    decimal.Decimal
}
