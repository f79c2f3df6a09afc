package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrWebhookNotFound = errors.New("webhook record not found")
	// ErrWebhookExists возвращается при конкурентной вставке по одному
	// ключу идемпотентности: вторая доставка должна упасть, а не
	// перезаписать первую.
	ErrWebhookExists = errors.New("webhook record already exists")
)

// PostgresWebhookStorage реализует журнал входящих callback в PostgreSQL.
type PostgresWebhookStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresWebhookStorage создаёт новый экземпляр.
func NewPostgresWebhookStorage(pool *pgxpool.Pool) *PostgresWebhookStorage {
	return &PostgresWebhookStorage{pool: pool}
}

// Create пишет необработанную запись до любых побочных эффектов.
func (s *PostgresWebhookStorage) Create(ctx context.Context, record *models.WebhookRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO webhook_records (id, idempotency_key, channel, payload, signature, source_ip, processed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		RETURNING received_at
	`

	err := s.pool.QueryRow(ctx, query,
		record.ID,
		record.IdempotencyKey,
		record.Channel,
		record.Payload,
		record.Signature,
		record.SourceIP,
	).Scan(&record.ReceivedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrWebhookExists
		}
		return fmt.Errorf("failed to create webhook record: %w", err)
	}

	return nil
}

// GetByKey ищет запись по ключу идемпотентности.
func (s *PostgresWebhookStorage) GetByKey(ctx context.Context, key string) (*models.WebhookRecord, error) {
	query := `
		SELECT id, idempotency_key, channel, payload, signature, source_ip,
		       processed, process_error, received_at, processed_at
		FROM webhook_records
		WHERE idempotency_key = $1
	`

	record := &models.WebhookRecord{}
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&record.ID,
		&record.IdempotencyKey,
		&record.Channel,
		&record.Payload,
		&record.Signature,
		&record.SourceIP,
		&record.Processed,
		&record.ProcessError,
		&record.ReceivedAt,
		&record.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to get webhook record: %w", err)
	}

	return record, nil
}

// MarkProcessedTx поднимает флаг processed в рамках транзакции обработки.
func (s *PostgresWebhookStorage) MarkProcessedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `
		UPDATE webhook_records
		SET processed = TRUE, process_error = NULL, processed_at = NOW()
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookNotFound
	}

	return nil
}

// RecordError сохраняет ошибку обработки вне транзакции, чтобы запись
// пережила откат.
func (s *PostgresWebhookStorage) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE webhook_records
		SET process_error = $1
		WHERE id = $2 AND NOT processed
	`

	if _, err := s.pool.Exec(ctx, query, message, id); err != nil {
		return fmt.Errorf("failed to record webhook error: %w", err)
	}
	return nil
}
