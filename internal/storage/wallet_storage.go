package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("wallet account not found")
	// ErrVersionConflict означает, что между чтением и условной записью
	// вклинилась другая мутация баланса.
	ErrVersionConflict = errors.New("wallet version conflict")
)

// PostgresWalletStorage реализует хранение балансов и проводок в PostgreSQL.
type PostgresWalletStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresWalletStorage создаёт новый экземпляр.
func NewPostgresWalletStorage(pool *pgxpool.Pool) *PostgresWalletStorage {
	return &PostgresWalletStorage{pool: pool}
}

// EnsureAccountTx создаёт счёт в валюте, если его ещё нет.
func (s *PostgresWalletStorage) EnsureAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) error {
	query := `
		INSERT INTO wallet_accounts (id, user_id, currency, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, NOW(), NOW())
		ON CONFLICT (user_id, currency) DO NOTHING
	`

	if _, err := tx.Exec(ctx, query, uuid.New(), userID, currency); err != nil {
		return fmt.Errorf("failed to ensure wallet account: %w", err)
	}
	return nil
}

// GetAccountTx читает текущий баланс и версию счёта.
// Чтение без блокировки: корректность обеспечивает условная запись.
func (s *PostgresWalletStorage) GetAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.WalletAccount, error) {
	return s.getAccount(ctx, tx, userID, currency)
}

// GetAccount читает счёт вне транзакции.
func (s *PostgresWalletStorage) GetAccount(ctx context.Context, userID uuid.UUID, currency string) (*models.WalletAccount, error) {
	return s.getAccount(ctx, s.pool, userID, currency)
}

func (s *PostgresWalletStorage) getAccount(ctx context.Context, q querier, userID uuid.UUID, currency string) (*models.WalletAccount, error) {
	query := `
		SELECT id, user_id, currency, balance, version, created_at, updated_at
		FROM wallet_accounts
		WHERE user_id = $1 AND currency = $2
	`

	account := &models.WalletAccount{}
	err := q.QueryRow(ctx, query, userID, currency).Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get wallet account: %w", err)
	}

	return account, nil
}

// UpdateBalanceCAS - условная запись баланса: выполняется только если
// версия не изменилась с момента чтения, и увеличивает её. Ноль
// затронутых строк означает конкурентную мутацию.
// Единственный разрешённый способ менять баланс.
func (s *PostgresWalletStorage) UpdateBalanceCAS(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	query := `
		UPDATE wallet_accounts
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`

	result, err := tx.Exec(ctx, query, newBalance, accountID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	return nil
}

// CreateTransactionTx пишет неизменяемую проводку в рамках транзакции.
func (s *PostgresWalletStorage) CreateTransactionTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	query := `
		INSERT INTO wallet_transactions (id, user_id, order_id, type, currency, amount, balance_before, balance_after, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`

	err := tx.QueryRow(ctx, query,
		txn.ID,
		txn.UserID,
		txn.OrderID,
		txn.Type,
		txn.Currency,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.ExternalRef,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetTransactionsByOrder возвращает проводки ордера, старые первыми.
func (s *PostgresWalletStorage) GetTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, order_id, type, currency, amount, balance_before, balance_after, external_ref, created_at
		FROM wallet_transactions
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.OrderID, &txn.Type, &txn.Currency,
			&txn.Amount, &txn.BalanceBefore, &txn.BalanceAfter, &txn.ExternalRef, &txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}

	return txns, nil
}
