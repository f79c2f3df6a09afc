package services

import (
	"context"
	"log"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
)

// StatisticsAggregator обновляет счётчики платежей best-effort:
// ошибки логируются и глотаются, леджер от них не зависит.
type StatisticsAggregator struct {
	storage StatisticsStorage
	logger  *log.Logger
}

// NewStatisticsAggregator создаёт агрегатор.
func NewStatisticsAggregator(storage StatisticsStorage, logger *log.Logger) *StatisticsAggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &StatisticsAggregator{
		storage: storage,
		logger:  logger,
	}
}

// Record применяет приращение к счётчикам пользователя, дня и глобальным.
func (a *StatisticsAggregator) Record(ctx context.Context, update models.StatisticsUpdate) {
	if err := a.storage.Apply(ctx, update); err != nil {
		a.logger.Printf("statistics update failed for user %s: %v", update.UserID, err)
	}
}
