package storage

import (
	"context"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MockOrderStorage - мок для тестирования (экспортируемый для использования в других пакетах)
type MockOrderStorage struct {
	CreateFunc                  func(ctx context.Context, order *models.Order) error
	CreateWithTxFunc            func(ctx context.Context, tx pgx.Tx, order *models.Order) error
	GetByMerchantOrderIDFunc    func(ctx context.Context, merchantOrderID string) (*models.Order, error)
	GetByMerchantOrderIDTxFunc  func(ctx context.Context, tx pgx.Tx, merchantOrderID string) (*models.Order, error)
	GetByExternalOrderIDTxFunc  func(ctx context.Context, tx pgx.Tx, externalOrderID string) (*models.Order, error)
	GetByUserIDFunc             func(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.Order, error)
	GetStalePendingFunc         func(ctx context.Context, direction models.OrderDirection, olderThan time.Time) ([]*models.Order, error)
	SetGatewayResultFunc        func(ctx context.Context, orderID uuid.UUID, externalOrderID string, paymentURL *string, resp *models.ProviderResponse) error
	UpdateStatusTxFunc          func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status models.OrderStatus, failureReason, externalTxRef *string) error
	AppendWebhookSnapshotTxFunc func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, snapshot []byte) error
}

func (m *MockOrderStorage) Create(ctx context.Context, order *models.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, order)
	}
	return nil
}

func (m *MockOrderStorage) CreateWithTx(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	if m.CreateWithTxFunc != nil {
		return m.CreateWithTxFunc(ctx, tx, order)
	}
	return nil
}

func (m *MockOrderStorage) GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Order, error) {
	if m.GetByMerchantOrderIDFunc != nil {
		return m.GetByMerchantOrderIDFunc(ctx, merchantOrderID)
	}
	return nil, ErrOrderNotFound
}

func (m *MockOrderStorage) GetByMerchantOrderIDTx(ctx context.Context, tx pgx.Tx, merchantOrderID string) (*models.Order, error) {
	if m.GetByMerchantOrderIDTxFunc != nil {
		return m.GetByMerchantOrderIDTxFunc(ctx, tx, merchantOrderID)
	}
	return nil, ErrOrderNotFound
}

func (m *MockOrderStorage) GetByExternalOrderIDTx(ctx context.Context, tx pgx.Tx, externalOrderID string) (*models.Order, error) {
	if m.GetByExternalOrderIDTxFunc != nil {
		return m.GetByExternalOrderIDTxFunc(ctx, tx, externalOrderID)
	}
	return nil, ErrOrderNotFound
}

func (m *MockOrderStorage) GetByUserID(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.Order, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID, direction)
	}
	return []*models.Order{}, nil
}

func (m *MockOrderStorage) GetStalePending(ctx context.Context, direction models.OrderDirection, olderThan time.Time) ([]*models.Order, error) {
	if m.GetStalePendingFunc != nil {
		return m.GetStalePendingFunc(ctx, direction, olderThan)
	}
	return []*models.Order{}, nil
}

func (m *MockOrderStorage) SetGatewayResult(ctx context.Context, orderID uuid.UUID, externalOrderID string, paymentURL *string, resp *models.ProviderResponse) error {
	if m.SetGatewayResultFunc != nil {
		return m.SetGatewayResultFunc(ctx, orderID, externalOrderID, paymentURL, resp)
	}
	return nil
}

func (m *MockOrderStorage) UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status models.OrderStatus, failureReason, externalTxRef *string) error {
	if m.UpdateStatusTxFunc != nil {
		return m.UpdateStatusTxFunc(ctx, tx, orderID, status, failureReason, externalTxRef)
	}
	return nil
}

func (m *MockOrderStorage) AppendWebhookSnapshotTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, snapshot []byte) error {
	if m.AppendWebhookSnapshotTxFunc != nil {
		return m.AppendWebhookSnapshotTxFunc(ctx, tx, orderID, snapshot)
	}
	return nil
}

// MockWebhookStorage - мок журнала callback.
type MockWebhookStorage struct {
	CreateFunc          func(ctx context.Context, record *models.WebhookRecord) error
	GetByKeyFunc        func(ctx context.Context, key string) (*models.WebhookRecord, error)
	MarkProcessedTxFunc func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	RecordErrorFunc     func(ctx context.Context, id uuid.UUID, message string) error
}

func (m *MockWebhookStorage) Create(ctx context.Context, record *models.WebhookRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, record)
	}
	return nil
}

func (m *MockWebhookStorage) GetByKey(ctx context.Context, key string) (*models.WebhookRecord, error) {
	if m.GetByKeyFunc != nil {
		return m.GetByKeyFunc(ctx, key)
	}
	return nil, ErrWebhookNotFound
}

func (m *MockWebhookStorage) MarkProcessedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if m.MarkProcessedTxFunc != nil {
		return m.MarkProcessedTxFunc(ctx, tx, id)
	}
	return nil
}

func (m *MockWebhookStorage) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	if m.RecordErrorFunc != nil {
		return m.RecordErrorFunc(ctx, id, message)
	}
	return nil
}

// MockWalletStorage - мок хранилища балансов.
type MockWalletStorage struct {
	EnsureAccountTxFunc     func(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) error
	GetAccountFunc          func(ctx context.Context, userID uuid.UUID, currency string) (*models.WalletAccount, error)
	GetAccountTxFunc        func(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.WalletAccount, error)
	UpdateBalanceCASFunc    func(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error
	CreateTransactionTxFunc func(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error
}

func (m *MockWalletStorage) EnsureAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) error {
	if m.EnsureAccountTxFunc != nil {
		return m.EnsureAccountTxFunc(ctx, tx, userID, currency)
	}
	return nil
}

func (m *MockWalletStorage) GetAccount(ctx context.Context, userID uuid.UUID, currency string) (*models.WalletAccount, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, userID, currency)
	}
	return nil, ErrAccountNotFound
}

func (m *MockWalletStorage) GetAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.WalletAccount, error) {
	if m.GetAccountTxFunc != nil {
		return m.GetAccountTxFunc(ctx, tx, userID, currency)
	}
	return nil, ErrAccountNotFound
}

func (m *MockWalletStorage) UpdateBalanceCAS(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	if m.UpdateBalanceCASFunc != nil {
		return m.UpdateBalanceCASFunc(ctx, tx, accountID, newBalance, expectedVersion)
	}
	return nil
}

func (m *MockWalletStorage) CreateTransactionTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error {
	if m.CreateTransactionTxFunc != nil {
		return m.CreateTransactionTxFunc(ctx, tx, txn)
	}
	return nil
}

// MockStatisticsStorage - мок счётчиков.
type MockStatisticsStorage struct {
	ApplyFunc func(ctx context.Context, update models.StatisticsUpdate) error
}

func (m *MockStatisticsStorage) Apply(ctx context.Context, update models.StatisticsUpdate) error {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, update)
	}
	return nil
}
