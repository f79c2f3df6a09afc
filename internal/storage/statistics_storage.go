package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStatisticsStorage реализует upsert счётчиков платежей.
type PostgresStatisticsStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStatisticsStorage создаёт новый экземпляр.
func NewPostgresStatisticsStorage(pool *pgxpool.Pool) *PostgresStatisticsStorage {
	return &PostgresStatisticsStorage{pool: pool}
}

// Apply выполняет три независимых upsert: по пользователю, по дню
// и по глобальному синглтону. Счётчики совещательные: вызывающий
// не должен откатывать леджер при их сбое.
func (s *PostgresStatisticsStorage) Apply(ctx context.Context, update models.StatisticsUpdate) error {
	scopes := []struct {
		scope models.StatisticsScope
		key   string
	}{
		{models.StatisticsScopeUser, update.UserID.String()},
		{models.StatisticsScopeDay, time.Now().UTC().Format("2006-01-02")},
		{models.StatisticsScopeGlobal, "global"},
	}

	for _, sc := range scopes {
		if err := s.upsert(ctx, sc.scope, sc.key, update); err != nil {
			return fmt.Errorf("upsert %s statistics: %w", sc.scope, err)
		}
	}
	return nil
}

func (s *PostgresStatisticsStorage) upsert(ctx context.Context, scope models.StatisticsScope, key string, update models.StatisticsUpdate) error {
	var attempts, outcome, amountCol string
	switch update.Direction {
	case models.OrderDirectionDeposit:
		attempts, amountCol = "deposit_attempts", "deposit_amount"
		if update.Success {
			outcome = "deposit_successes"
		} else {
			outcome = "deposit_failures"
		}
	default:
		attempts, amountCol = "withdrawal_attempts", "withdrawal_amount"
		if update.Success {
			outcome = "withdrawal_successes"
		} else {
			outcome = "withdrawal_failures"
		}
	}

	// сумма накапливается только по успешным исходам
	amount := decimal.Zero
	if update.Success {
		amount = update.Amount
	}

	query := fmt.Sprintf(`
		INSERT INTO payment_statistics (scope, scope_key, %[1]s, %[2]s, %[3]s)
		VALUES ($1, $2, 1, 1, $3)
		ON CONFLICT (scope, scope_key) DO UPDATE
		SET %[1]s = payment_statistics.%[1]s + 1,
		    %[2]s = payment_statistics.%[2]s + 1,
		    %[3]s = payment_statistics.%[3]s + EXCLUDED.%[3]s
	`, attempts, outcome, amountCol)

	if _, err := s.pool.Exec(ctx, query, scope, key, amount); err != nil {
		return err
	}
	return nil
}
