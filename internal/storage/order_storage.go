package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already exists")
	// ErrOrderTerminal возвращается при попытке перевести ордер
	// из конечного статуса.
	ErrOrderTerminal = errors.New("order already in terminal state")
)

// querier покрывает pgxpool.Pool и pgx.Tx, чтобы методы чтения/записи
// работали и вне, и внутри транзакции.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresOrderStorage реализует хранение платёжных ордеров в PostgreSQL.
type PostgresOrderStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderStorage создаёт новый экземпляр PostgresOrderStorage.
func NewPostgresOrderStorage(pool *pgxpool.Pool) *PostgresOrderStorage {
	return &PostgresOrderStorage{pool: pool}
}

const orderColumns = `
	id, user_id, direction, merchant_order_id, external_order_id,
	amount, currency, method, payout_details, status, failure_reason,
	external_tx_ref, payment_url, provider_response, webhook_trail,
	created_at, updated_at
`

// Create создаёт ордер в статусе pending.
func (s *PostgresOrderStorage) Create(ctx context.Context, order *models.Order) error {
	return s.createIn(ctx, s.pool, order)
}

// CreateWithTx создаёт ордер в рамках переданной транзакции.
func (s *PostgresOrderStorage) CreateWithTx(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	return s.createIn(ctx, tx, order)
}

func (s *PostgresOrderStorage) createIn(ctx context.Context, q querier, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	payoutDetails, err := json.Marshal(order.PayoutDetails)
	if err != nil {
		return fmt.Errorf("marshal payout details: %w", err)
	}

	query := `
		INSERT INTO payment_orders (id, user_id, direction, merchant_order_id, amount, currency, method, payout_details, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err = q.QueryRow(ctx, query,
		order.ID,
		order.UserID,
		order.Direction,
		order.MerchantOrderID,
		order.Amount,
		order.Currency,
		order.Method,
		payoutDetails,
		order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrOrderExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetByMerchantOrderID ищет ордер по merchant order id.
func (s *PostgresOrderStorage) GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Order, error) {
	return s.getBy(ctx, s.pool, "merchant_order_id", merchantOrderID)
}

// GetByMerchantOrderIDTx ищет ордер по merchant order id в транзакции.
func (s *PostgresOrderStorage) GetByMerchantOrderIDTx(ctx context.Context, tx pgx.Tx, merchantOrderID string) (*models.Order, error) {
	return s.getBy(ctx, tx, "merchant_order_id", merchantOrderID)
}

// GetByExternalOrderIDTx ищет ордер по идентификатору процессинга.
func (s *PostgresOrderStorage) GetByExternalOrderIDTx(ctx context.Context, tx pgx.Tx, externalOrderID string) (*models.Order, error) {
	return s.getBy(ctx, tx, "external_order_id", externalOrderID)
}

func (s *PostgresOrderStorage) getBy(ctx context.Context, q querier, column, value string) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_orders WHERE %s = $1`, orderColumns, column)

	order, err := scanOrder(q.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by %s: %w", column, err)
	}
	return order, nil
}

// GetByUserID возвращает ордера пользователя по направлению, новые первыми.
func (s *PostgresOrderStorage) GetByUserID(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_orders
		WHERE user_id = $1 AND direction = $2
		ORDER BY created_at DESC
	`, orderColumns)

	rows, err := s.pool.Query(ctx, query, userID, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}

	return orders, nil
}

// GetStalePending возвращает pending-ордера старше заданного момента,
// у которых уже есть внешний идентификатор. Используется диагностическим
// опросом процессинга.
func (s *PostgresOrderStorage) GetStalePending(ctx context.Context, direction models.OrderDirection, olderThan time.Time) ([]*models.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_orders
		WHERE direction = $1
		  AND status IN ('pending', 'processing')
		  AND external_order_id IS NOT NULL
		  AND created_at < $2
		ORDER BY created_at
		LIMIT 100
	`, orderColumns)

	rows, err := s.pool.Query(ctx, query, direction, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}

	return orders, nil
}

// SetGatewayResult сохраняет результат создания ордера у процессинга
// и переводит ордер в processing.
func (s *PostgresOrderStorage) SetGatewayResult(ctx context.Context, orderID uuid.UUID, externalOrderID string, paymentURL *string, resp *models.ProviderResponse) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal provider response: %w", err)
	}

	query := `
		UPDATE payment_orders
		SET external_order_id = $1, payment_url = $2, provider_response = $3,
		    status = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`

	result, err := s.pool.Exec(ctx, query, externalOrderID, paymentURL, respJSON,
		models.OrderStatusProcessing, orderID, models.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("failed to set gateway result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// UpdateStatusTx переводит ордер в новый статус в рамках транзакции.
// Переход из конечного статуса блокируется на уровне SQL.
func (s *PostgresOrderStorage) UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status models.OrderStatus, failureReason, externalTxRef *string) error {
	query := `
		UPDATE payment_orders
		SET status = $1,
		    failure_reason = COALESCE($2, failure_reason),
		    external_tx_ref = COALESCE($3, external_tx_ref),
		    updated_at = NOW()
		WHERE id = $4 AND status IN ('pending', 'processing')
	`

	result, err := tx.Exec(ctx, query, status, failureReason, externalTxRef, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrderTerminal
	}

	return nil
}

// AppendWebhookSnapshotTx дописывает снимок webhook в аудиторский след ордера.
func (s *PostgresOrderStorage) AppendWebhookSnapshotTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, snapshot []byte) error {
	query := `
		UPDATE payment_orders
		SET webhook_trail = webhook_trail || $1::jsonb, updated_at = NOW()
		WHERE id = $2
	`

	result, err := tx.Exec(ctx, query, snapshot, orderID)
	if err != nil {
		return fmt.Errorf("failed to append webhook snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// scanOrder читает строку payment_orders в модель.
func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	var payoutDetails, providerResp, webhookTrail []byte

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Direction,
		&order.MerchantOrderID,
		&order.ExternalOrderID,
		&order.Amount,
		&order.Currency,
		&order.Method,
		&payoutDetails,
		&order.Status,
		&order.FailureReason,
		&order.ExternalTxRef,
		&order.PaymentURL,
		&providerResp,
		&webhookTrail,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payoutDetails) > 0 {
		if err := json.Unmarshal(payoutDetails, &order.PayoutDetails); err != nil {
			return nil, fmt.Errorf("unmarshal payout details: %w", err)
		}
	}
	if len(providerResp) > 0 {
		if err := json.Unmarshal(providerResp, &order.ProviderResp); err != nil {
			return nil, fmt.Errorf("unmarshal provider response: %w", err)
		}
	}
	if len(webhookTrail) > 0 {
		if err := json.Unmarshal(webhookTrail, &order.WebhookTrail); err != nil {
			return nil, fmt.Errorf("unmarshal webhook trail: %w", err)
		}
	}

	return order, nil
}
