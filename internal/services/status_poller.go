package services

import (
	"context"
	"log"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/gateway"
	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
)

// StatusPoller периодически опрашивает процессинг по зависшим ордерам
// и логирует расхождения. Только диагностика: состояние ордеров меняет
// исключительно webhook-конвейер, поллер ничего не пишет.
type StatusPoller struct {
	orderStorage OrderStorage
	client       gateway.Client
	interval     time.Duration
	minAge       time.Duration
	logger       *log.Logger
}

func NewStatusPoller(orderStorage OrderStorage, client gateway.Client, interval, minAge time.Duration, logger *log.Logger) *StatusPoller {
	if interval <= 0 {
		interval = time.Minute
	}
	if minAge <= 0 {
		minAge = 15 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StatusPoller{
		orderStorage: orderStorage,
		client:       client,
		interval:     interval,
		minAge:       minAge,
		logger:       logger,
	}
}

// Start запускает поллер в отдельной горутине и останавливается по ctx.Done().
func (p *StatusPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.checkBatch(ctx)
			}
		}
	}()
}

func (p *StatusPoller) checkBatch(ctx context.Context) {
	cutoff := time.Now().Add(-p.minAge)
	for _, direction := range []models.OrderDirection{models.OrderDirectionDeposit, models.OrderDirectionWithdrawal} {
		orders, err := p.orderStorage.GetStalePending(ctx, direction, cutoff)
		if err != nil {
			p.logger.Printf("status poller: failed to get stale %s orders: %v", direction, err)
			continue
		}
		if len(orders) > 0 {
			p.logger.Printf("status poller: checking %d stale %s orders", len(orders), direction)
		}
		for _, o := range orders {
			p.checkOrder(ctx, o)
		}
	}
}

func (p *StatusPoller) checkOrder(ctx context.Context, order *models.Order) {
	if order.ExternalOrderID == nil {
		return
	}

	var (
		status *gateway.OrderStatus
		err    error
	)
	switch order.Direction {
	case models.OrderDirectionWithdrawal:
		status, err = p.client.QueryPayout(ctx, *order.ExternalOrderID)
	default:
		status, err = p.client.QueryOrder(ctx, *order.ExternalOrderID)
	}
	if err != nil {
		p.logger.Printf("status poller: query %s failed for order %s: %v", order.Direction, order.MerchantOrderID, err)
		return
	}

	// Процессинг считает ордер завершённым, а webhook до нас не дошёл.
	switch status.Status {
	case "SUCCESS", "FAILED", "CANCELLED":
		p.logger.Printf("status poller: order %s is %s locally but %s at gateway, webhook likely lost",
			order.MerchantOrderID, order.Status, status.Status)
	}
}
