package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/gateway"
	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/eegluit-cloud/neonplay-paygate/internal/signature"
	"github.com/eegluit-cloud/neonplay-paygate/internal/storage"
	"github.com/eegluit-cloud/neonplay-paygate/internal/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrUnauthorizedSource   = errors.New("webhook source not allow-listed")
	ErrUnknownWebhookStatus = errors.New("unknown webhook status")
	// ErrAmountMismatch означает расхождение суммы callback с суммой
	// ордера; зачисление блокируется до ручного разбора.
	ErrAmountMismatch = errors.New("webhook amount does not match order")
)

// Схемы конверта ответов процессинга.
const (
	schemaPaymentV1 = "pay247.payment.v1"
	schemaPayoutV1  = "pay247.payout.v1"
)

// ReconciliationService - создание ордеров у процессинга и применение
// его callback к внутреннему леджеру.
type ReconciliationService interface {
	CreateDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error)
	CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error)
	OrderStatus(ctx context.Context, userID uuid.UUID, direction models.OrderDirection, merchantOrderID string) (*models.OrderStatusResponse, error)
	ListOrders(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.OrderListItem, error)
	GatewayBalances(ctx context.Context) ([]gateway.Balance, error)
	HandleWebhook(ctx context.Context, direction models.OrderDirection, params map[string]any, raw []byte, sourceIP string) error
}

// ReconciliationConfig - неизменяемые параметры сверки.
type ReconciliationConfig struct {
	GatewaySecret    string
	CallbackBaseURL  string
	WebhookAllowList []string
	WebhookTxTimeout time.Duration
}

type ReconciliationServiceImpl struct {
	pool     TxBeginner
	orders   OrderStorage
	webhooks WebhookStorage
	ledger   WalletLedger
	stats    StatisticsRecorder
	gateway  gateway.Client
	cfg      ReconciliationConfig
	logger   *log.Logger
}

// NewReconciliationService создаёт сервис сверки.
func NewReconciliationService(pool TxBeginner, orders OrderStorage, webhooks WebhookStorage, ledger WalletLedger, stats StatisticsRecorder, gw gateway.Client, cfg ReconciliationConfig, logger *log.Logger) *ReconciliationServiceImpl {
	if cfg.WebhookTxTimeout <= 0 {
		cfg.WebhookTxTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReconciliationServiceImpl{
		pool:     pool,
		orders:   orders,
		webhooks: webhooks,
		ledger:   ledger,
		stats:    stats,
		gateway:  gw,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateDeposit инициирует депозит: ордер в леджере, затем платёж
// у процессинга. При сбое процессинга ордер остаётся в pending
// и доступен для последующей сверки.
func (s *ReconciliationServiceImpl) CreateDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
	order, err := s.ledger.Initiate(ctx, userID, amount, currency, method)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.CreatePayment(ctx, gateway.PaymentIntent{
		MerchantOrderID: order.MerchantOrderID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Method:          order.Method,
		ClientIP:        utils.NormalizeIP(clientIP),
		ReturnURL:       returnURL,
		NotifyURL:       s.cfg.CallbackBaseURL + "/api/webhook/deposit",
	})
	if err != nil {
		s.logger.Printf("deposit %s: gateway call failed: %v", order.MerchantOrderID, err)
		return nil, err
	}

	resp := &models.ProviderResponse{Schema: schemaPaymentV1, Payload: res.Raw}
	if err := s.orders.SetGatewayResult(ctx, order.ID, res.ExternalOrderID, &res.PaymentURL, resp); err != nil {
		return nil, fmt.Errorf("persist gateway result: %w", err)
	}

	return &models.DepositCreatedResponse{
		OrderID:         order.ID,
		MerchantOrderID: order.MerchantOrderID,
		ExternalOrderID: res.ExternalOrderID,
		PaymentURL:      res.PaymentURL,
	}, nil
}

// CreateWithdrawal инициирует вывод: резерв средств в леджере, затем
// выплата у процессинга. Успешный вызов сразу переводит ордер
// в processing: средства считаются переданными в попытку выплаты.
func (s *ReconciliationServiceImpl) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error) {
	order, err := s.ledger.Reserve(ctx, userID, amount, currency, method, accountDetails)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.CreatePayout(ctx, gateway.PayoutIntent{
		MerchantOrderID: order.MerchantOrderID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Method:          order.Method,
		AccountDetails:  accountDetails,
		NotifyURL:       s.cfg.CallbackBaseURL + "/api/webhook/withdrawal",
	})
	if err != nil {
		s.logger.Printf("withdrawal %s: gateway call failed: %v", order.MerchantOrderID, err)
		return nil, err
	}

	resp := &models.ProviderResponse{Schema: schemaPayoutV1, Payload: res.Raw}
	if err := s.orders.SetGatewayResult(ctx, order.ID, res.ExternalOrderID, nil, resp); err != nil {
		return nil, fmt.Errorf("persist gateway result: %w", err)
	}

	return &models.WithdrawalCreatedResponse{
		WithdrawalID:    order.ID,
		MerchantOrderID: order.MerchantOrderID,
		ExternalOrderID: res.ExternalOrderID,
		Status:          string(models.OrderStatusProcessing),
	}, nil
}

// OrderStatus возвращает локальный статус ордера и, по возможности,
// живой статус у процессинга. Ответ процессинга диагностический
// и не меняет состояние.
func (s *ReconciliationServiceImpl) OrderStatus(ctx context.Context, userID uuid.UUID, direction models.OrderDirection, merchantOrderID string) (*models.OrderStatusResponse, error) {
	order, err := s.orders.GetByMerchantOrderID(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID || order.Direction != direction {
		return nil, storage.ErrOrderNotFound
	}

	resp := &models.OrderStatusResponse{
		MerchantOrderID: order.MerchantOrderID,
		Status:          string(order.Status),
		Amount:          order.Amount.String(),
		Currency:        order.Currency,
	}

	if order.ExternalOrderID != nil {
		query := s.gateway.QueryOrder
		if direction == models.OrderDirectionWithdrawal {
			query = s.gateway.QueryPayout
		}
		st, err := query(ctx, *order.ExternalOrderID)
		if err != nil {
			s.logger.Printf("order %s: gateway status query failed: %v", merchantOrderID, err)
		} else {
			resp.GatewayStatus = st.Status
		}
	}

	return resp, nil
}

// ListOrders возвращает ордера пользователя по направлению.
func (s *ReconciliationServiceImpl) ListOrders(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.OrderListItem, error) {
	orders, err := s.orders.GetByUserID(ctx, userID, direction)
	if err != nil {
		return nil, fmt.Errorf("get user orders: %w", err)
	}

	items := make([]*models.OrderListItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, &models.OrderListItem{
			MerchantOrderID: o.MerchantOrderID,
			Amount:          o.Amount.String(),
			Currency:        o.Currency,
			Method:          o.Method,
			Status:          string(o.Status),
			CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

// GatewayBalances возвращает остатки мерчанта у процессинга.
func (s *ReconciliationServiceImpl) GatewayBalances(ctx context.Context) ([]gateway.Balance, error) {
	return s.gateway.CheckBalance(ctx)
}

// HandleWebhook применяет callback процессинга: аутентификация,
// идемпотентность, транзакционное применение исхода.
func (s *ReconciliationServiceImpl) HandleWebhook(ctx context.Context, direction models.OrderDirection, params map[string]any, raw []byte, sourceIP string) error {
	// Аутентификация до любого доверия к payload. Сама попытка
	// фиксируется в логе для аудита.
	if !signature.Verify(params, s.cfg.GatewaySecret) {
		s.logger.Printf("webhook auth failure: bad signature, channel=%s source=%s", direction, sourceIP)
		return ErrSignatureInvalid
	}
	if !utils.IPAllowed(sourceIP, s.cfg.WebhookAllowList) {
		s.logger.Printf("webhook auth failure: source %s not allow-listed, channel=%s", sourceIP, direction)
		return ErrUnauthorizedSource
	}

	var n models.WebhookNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	// канал выводов шлёт статусы в нижнем регистре
	status := strings.ToUpper(strings.TrimSpace(n.Status))

	// Ключ включает статус: процессинг шлёт промежуточные и итоговые
	// callback одного ордера с одинаковым createdAt, и ключ только по
	// времени создания склеил бы SUCCESS с уже обработанным PROCESSING.
	ts := n.PaidAt
	if ts <= 0 {
		ts = n.CreatedAt
	}
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	key := fmt.Sprintf("%s_%s_%s_%d", direction, n.OrderID, status, ts)

	record, err := s.webhooks.GetByKey(ctx, key)
	switch {
	case err == nil:
		if record.Processed {
			// повторная доставка: эффект уже применён
			s.logger.Printf("webhook %s already processed, skipping", key)
			return nil
		}
		// необработанная запись от упавшей попытки переиспользуется
	case errors.Is(err, storage.ErrWebhookNotFound):
		record = &models.WebhookRecord{
			IdempotencyKey: key,
			Channel:        string(direction),
			Payload:        raw,
			Signature:      n.Sign,
			SourceIP:       sourceIP,
		}
		// запись до обработки: при падении транзакции улика остаётся
		if err := s.webhooks.Create(ctx, record); err != nil {
			return err
		}
	default:
		return err
	}

	if err := s.process(ctx, direction, record, &n, status, raw); err != nil {
		if recErr := s.webhooks.RecordError(ctx, record.ID, err.Error()); recErr != nil {
			s.logger.Printf("webhook %s: failed to record error: %v", key, recErr)
		}
		return err
	}
	return nil
}

// process выполняет транзакционную часть обработки webhook
// с ограничением по времени.
func (s *ReconciliationServiceImpl) process(ctx context.Context, direction models.OrderDirection, record *models.WebhookRecord, n *models.WebhookNotification, status string, raw []byte) error {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.WebhookTxTimeout)
	defer cancel()

	tx, err := s.pool.Begin(txCtx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(txCtx)

	var order *models.Order
	if direction == models.OrderDirectionDeposit {
		order, err = s.orders.GetByMerchantOrderIDTx(txCtx, tx, n.MerchantOrderID)
	} else {
		order, err = s.orders.GetByExternalOrderIDTx(txCtx, tx, n.OrderID)
	}
	if err != nil {
		return fmt.Errorf("locate order: %w", err)
	}

	if order.Status.IsTerminal() {
		// повторный callback после завершения: средства не двигаются
		if err := s.webhooks.MarkProcessedTx(txCtx, tx, record.ID); err != nil {
			return err
		}
		return tx.Commit(txCtx)
	}

	// аудиторский след пишется независимо от исхода
	if err := s.orders.AppendWebhookSnapshotTx(txCtx, tx, order.ID, raw); err != nil {
		return err
	}

	var statsUpdate *models.StatisticsUpdate
	switch status {
	case "SUCCESS":
		if err := s.applySuccess(txCtx, tx, direction, order, n); err != nil {
			return err
		}
		statsUpdate = &models.StatisticsUpdate{UserID: order.UserID, Direction: direction, Success: true, Amount: order.Amount}
	case "FAILED", "CANCELLED":
		if err := s.applyFailure(txCtx, tx, direction, order, n, status); err != nil {
			return err
		}
		statsUpdate = &models.StatisticsUpdate{UserID: order.UserID, Direction: direction, Success: false, Amount: order.Amount}
	case "PENDING", "PROCESSING":
		if order.Status == models.OrderStatusPending {
			if err := s.orders.UpdateStatusTx(txCtx, tx, order.ID, models.OrderStatusProcessing, nil, nil); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownWebhookStatus, n.Status)
	}

	if err := s.webhooks.MarkProcessedTx(txCtx, tx, record.ID); err != nil {
		return err
	}
	if err := tx.Commit(txCtx); err != nil {
		return fmt.Errorf("commit webhook tx: %w", err)
	}

	// счётчики совещательные: их сбой не откатывает леджер
	if statsUpdate != nil {
		s.stats.Record(ctx, *statsUpdate)
	}
	return nil
}

func (s *ReconciliationServiceImpl) applySuccess(ctx context.Context, tx pgx.Tx, direction models.OrderDirection, order *models.Order, n *models.WebhookNotification) error {
	if direction == models.OrderDirectionDeposit {
		reported, err := decimal.NewFromString(n.Amount)
		if err != nil || !reported.Equal(order.Amount) {
			return fmt.Errorf("%w: order %s, reported %q", ErrAmountMismatch, order.Amount, n.Amount)
		}
		if err := s.ledger.Confirm(ctx, tx, order, n.OrderID); err != nil {
			return err
		}
	}
	return s.orders.UpdateStatusTx(ctx, tx, order.ID, models.OrderStatusCompleted, nil, &n.OrderID)
}

func (s *ReconciliationServiceImpl) applyFailure(ctx context.Context, tx pgx.Tx, direction models.OrderDirection, order *models.Order, n *models.WebhookNotification, status string) error {
	reason := n.ErrorMsg
	if reason == "" {
		reason = strings.ToLower(status)
	}
	newStatus := models.OrderStatusFailed
	if status == "CANCELLED" {
		newStatus = models.OrderStatusCancelled
	}

	if err := s.orders.UpdateStatusTx(ctx, tx, order.ID, newStatus, &reason, nil); err != nil {
		return err
	}

	// депозит: средства не поступали, баланс не трогаем;
	// вывод: средства были зарезервированы и подлежат возврату
	if direction == models.OrderDirectionWithdrawal {
		if err := s.ledger.Refund(ctx, tx, order); err != nil {
			return err
		}
	}
	return nil
}
