package services

import (
	"context"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderStorage определяет интерфейс для работы с платёжными ордерами.
type OrderStorage interface {
	Create(ctx context.Context, order *models.Order) error
	CreateWithTx(ctx context.Context, tx pgx.Tx, order *models.Order) error
	GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Order, error)
	GetByMerchantOrderIDTx(ctx context.Context, tx pgx.Tx, merchantOrderID string) (*models.Order, error)
	GetByExternalOrderIDTx(ctx context.Context, tx pgx.Tx, externalOrderID string) (*models.Order, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.Order, error)
	GetStalePending(ctx context.Context, direction models.OrderDirection, olderThan time.Time) ([]*models.Order, error)
	SetGatewayResult(ctx context.Context, orderID uuid.UUID, externalOrderID string, paymentURL *string, resp *models.ProviderResponse) error
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status models.OrderStatus, failureReason, externalTxRef *string) error
	AppendWebhookSnapshotTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, snapshot []byte) error
}

// WebhookStorage определяет интерфейс журнала входящих callback.
type WebhookStorage interface {
	Create(ctx context.Context, record *models.WebhookRecord) error
	GetByKey(ctx context.Context, key string) (*models.WebhookRecord, error)
	MarkProcessedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	RecordError(ctx context.Context, id uuid.UUID, message string) error
}

// StatisticsStorage определяет интерфейс upsert счётчиков.
type StatisticsStorage interface {
	Apply(ctx context.Context, update models.StatisticsUpdate) error
}

// WalletLedger - контракт кошелька, потребляемый сверкой.
// Балансами владеет леджер; сервис сверки ими не распоряжается напрямую.
type WalletLedger interface {
	Initiate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string) (*models.Order, error)
	Reserve(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string, payoutDetails map[string]string) (*models.Order, error)
	Confirm(ctx context.Context, tx pgx.Tx, order *models.Order, externalRef string) error
	Refund(ctx context.Context, tx pgx.Tx, order *models.Order) error
}

// StatisticsRecorder - best-effort регистрация исходов платежей.
type StatisticsRecorder interface {
	Record(ctx context.Context, update models.StatisticsUpdate)
}

// TxBeginner открывает транзакции; в бою это pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
