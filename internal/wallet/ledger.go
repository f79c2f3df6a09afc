package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// OrderStore - операции над ордерами, нужные леджеру.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	CreateWithTx(ctx context.Context, tx pgx.Tx, order *models.Order) error
}

// AccountStore - операции над счетами и проводками.
// Баланс меняется только условной записью по версии.
type AccountStore interface {
	EnsureAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) error
	GetAccount(ctx context.Context, userID uuid.UUID, currency string) (*models.WalletAccount, error)
	GetAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.WalletAccount, error)
	UpdateBalanceCAS(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error
	CreateTransactionTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error
}

// TxBeginner открывает транзакции; в бою это pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger реализует кошелёк поверх хранилища: инициация депозитов,
// резервирование средств на вывод, подтверждение и компенсация.
type Ledger struct {
	pool     TxBeginner
	orders   OrderStore
	accounts AccountStore
}

// NewLedger создаёт леджер.
func NewLedger(pool TxBeginner, orders OrderStore, accounts AccountStore) *Ledger {
	return &Ledger{
		pool:     pool,
		orders:   orders,
		accounts: accounts,
	}
}

// Initiate валидирует параметры и создаёт депозитный ордер в pending.
// Средства на этом шаге не двигаются: депозит зачисляется только
// подтверждённым webhook.
func (l *Ledger) Initiate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string) (*models.Order, error) {
	currency, method, err := validateParams(amount, currency, method)
	if err != nil {
		return nil, err
	}

	order := newOrder(userID, models.OrderDirectionDeposit, amount, currency, method)
	if err := l.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create deposit order: %w", err)
	}

	return order, nil
}

// Reserve атомарно списывает средства под выплату и создаёт выводной
// ордер. Ноль затронутых строк при условной записи означает
// конкурентную мутацию баланса и откатывает резерв целиком.
func (l *Ledger) Reserve(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string, payoutDetails map[string]string) (*models.Order, error) {
	currency, method, err := validateParams(amount, currency, method)
	if err != nil {
		return nil, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := l.accounts.EnsureAccountTx(ctx, tx, userID, currency); err != nil {
		return nil, err
	}
	account, err := l.accounts.GetAccountTx(ctx, tx, userID, currency)
	if err != nil {
		return nil, err
	}

	if account.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	order := newOrder(userID, models.OrderDirectionWithdrawal, amount, currency, method)
	order.PayoutDetails = payoutDetails
	if err := l.orders.CreateWithTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("create withdrawal order: %w", err)
	}

	newBalance := account.Balance.Sub(amount)
	txn := &models.Transaction{
		UserID:        userID,
		OrderID:       order.ID,
		Type:          models.TransactionTypeWithdrawal,
		Currency:      currency,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
	}
	if err := l.accounts.CreateTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := l.accounts.UpdateBalanceCAS(ctx, tx, account.ID, newBalance, account.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, nil
}

// Confirm зачисляет депозит на баланс в рамках переданной транзакции
// обработки webhook.
func (l *Ledger) Confirm(ctx context.Context, tx pgx.Tx, order *models.Order, externalRef string) error {
	if err := l.accounts.EnsureAccountTx(ctx, tx, order.UserID, order.Currency); err != nil {
		return err
	}
	account, err := l.accounts.GetAccountTx(ctx, tx, order.UserID, order.Currency)
	if err != nil {
		return err
	}

	newBalance := account.Balance.Add(order.Amount)
	txn := &models.Transaction{
		UserID:        order.UserID,
		OrderID:       order.ID,
		Type:          models.TransactionTypeDeposit,
		Currency:      order.Currency,
		Amount:        order.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		ExternalRef:   &externalRef,
	}
	if err := l.accounts.CreateTransactionTx(ctx, tx, txn); err != nil {
		return err
	}

	return l.accounts.UpdateBalanceCAS(ctx, tx, account.ID, newBalance, account.Version)
}

// Refund возвращает зарезервированную под выплату сумму ровно один раз.
// Конфликт версий поднимается наверх: вызывающая транзакция решает,
// повторять или падать, но молча терять возврат нельзя.
func (l *Ledger) Refund(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	account, err := l.accounts.GetAccountTx(ctx, tx, order.UserID, order.Currency)
	if err != nil {
		return err
	}

	newBalance := account.Balance.Add(order.Amount)
	txn := &models.Transaction{
		UserID:        order.UserID,
		OrderID:       order.ID,
		Type:          models.TransactionTypeRefund,
		Currency:      order.Currency,
		Amount:        order.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
	}
	if err := l.accounts.CreateTransactionTx(ctx, tx, txn); err != nil {
		return err
	}

	return l.accounts.UpdateBalanceCAS(ctx, tx, account.ID, newBalance, account.Version)
}

// Balance возвращает текущий баланс пользователя в валюте.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error) {
	account, err := l.accounts.GetAccount(ctx, userID, strings.ToUpper(currency))
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func newOrder(userID uuid.UUID, direction models.OrderDirection, amount decimal.Decimal, currency, method string) *models.Order {
	id := uuid.New()
	return &models.Order{
		ID:              id,
		UserID:          userID,
		Direction:       direction,
		MerchantOrderID: models.MerchantOrderID(direction, id),
		Amount:          amount,
		Currency:        currency,
		Method:          method,
		Status:          models.OrderStatusPending,
	}
}

func validateParams(amount decimal.Decimal, currency, method string) (string, string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", "", ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "", "", ErrInvalidCurrency
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return "", "", ErrInvalidMethod
	}
	return currency, method, nil
}
