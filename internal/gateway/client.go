package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/eegluit-cloud/neonplay-paygate/internal/signature"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable возвращается при транспортном сбое (таймаут, отказ
	// соединения). Не путать с бизнес-отказом процессинга.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// RejectionError - бизнес-отказ процессинга с кодом из фиксированной таблицы.
type RejectionError struct {
	Code    int
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("gateway rejected request: code %d (%s)", e.Code, e.Message)
}

// rejectionReasons - таблица известных кодов отказа процессинга.
var rejectionReasons = map[int]string{
	1001: "invalid merchant",
	1002: "invalid signature",
	1003: "unsupported currency",
	1004: "amount below minimum",
	1005: "amount above maximum",
	1006: "duplicate merchant order",
	1007: "insufficient merchant balance",
	2001: "order not found",
	2002: "order expired",
	3001: "payout account rejected",
	3002: "payout method disabled",
}

// PaymentIntent - параметры создания депозитного платежа.
type PaymentIntent struct {
	MerchantOrderID string
	Amount          decimal.Decimal
	Currency        string
	Method          string
	ClientIP        string
	ReturnURL       string
	NotifyURL       string
}

// PayoutIntent - параметры создания выплаты.
type PayoutIntent struct {
	MerchantOrderID string
	Amount          decimal.Decimal
	Currency        string
	Method          string
	AccountDetails  map[string]string
	NotifyURL       string
}

// PaymentResult - ответ процессинга на создание платежа.
type PaymentResult struct {
	ExternalOrderID string
	PaymentURL      string
	Raw             json.RawMessage
}

// PayoutResult - ответ процессинга на создание выплаты.
type PayoutResult struct {
	ExternalOrderID string
	Status          string
	Raw             json.RawMessage
}

// OrderStatus - статус ордера по данным процессинга.
type OrderStatus struct {
	ExternalOrderID string
	Status          string
	PaidAmount      string
}

// Balance - остаток мерчанта в валюте.
type Balance struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

// Client - интерфейс исходящих вызовов к процессингу.
type Client interface {
	CreatePayment(ctx context.Context, intent PaymentIntent) (*PaymentResult, error)
	CreatePayout(ctx context.Context, intent PayoutIntent) (*PayoutResult, error)
	QueryOrder(ctx context.Context, externalOrderID string) (*OrderStatus, error)
	QueryPayout(ctx context.Context, externalOrderID string) (*OrderStatus, error)
	CheckBalance(ctx context.Context) ([]Balance, error)
}

// Config - неизменяемые реквизиты интеграции.
type Config struct {
	BaseURL    string
	MerchantID string
	Secret     string
	Version    string
	Timeout    time.Duration
}

// HTTPClient реализует Client поверх HTTP API процессинга.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	newNonce   func() string
}

// NewHTTPClient создаёт HTTP-клиент процессинга.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now:      time.Now,
		newNonce: func() string { return uuid.NewString() },
	}
}

// envelope - обязательные поля каждого исходящего запроса.
func (c *HTTPClient) envelope() map[string]any {
	return map[string]any{
		"merchantId": c.cfg.MerchantID,
		"timestamp":  c.now().UnixMilli(),
		"version":    c.cfg.Version,
		"nonce":      c.newNonce(),
	}
}

// gatewayResponse - общий конверт ответа процессинга.
type gatewayResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// CreatePayment создаёт депозитный платёж и возвращает платёжную ссылку.
func (c *HTTPClient) CreatePayment(ctx context.Context, intent PaymentIntent) (*PaymentResult, error) {
	params := c.envelope()
	params["merchantOrderId"] = intent.MerchantOrderID
	params["amount"] = intent.Amount.String()
	params["currency"] = intent.Currency
	params["payMethod"] = intent.Method
	params["clientIp"] = intent.ClientIP
	params["notifyUrl"] = intent.NotifyURL
	if intent.ReturnURL != "" {
		params["returnUrl"] = intent.ReturnURL
	}

	var data struct {
		OrderID    string `json:"orderId"`
		PaymentURL string `json:"paymentUrl"`
	}
	raw, err := c.post(ctx, "/v1/payment/create", params, &data)
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		ExternalOrderID: data.OrderID,
		PaymentURL:      data.PaymentURL,
		Raw:             raw,
	}, nil
}

// CreatePayout создаёт выплату. Реквизиты счёта переводятся в поля,
// ожидаемые процессингом для конкретного метода.
func (c *HTTPClient) CreatePayout(ctx context.Context, intent PayoutIntent) (*PayoutResult, error) {
	params := c.envelope()
	params["merchantOrderId"] = intent.MerchantOrderID
	params["amount"] = intent.Amount.String()
	params["currency"] = intent.Currency
	params["payMethod"] = intent.Method
	params["notifyUrl"] = intent.NotifyURL
	params["account"] = translateAccountDetails(intent.Method, intent.AccountDetails)

	var data struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	raw, err := c.post(ctx, "/v1/payout/create", params, &data)
	if err != nil {
		return nil, err
	}

	return &PayoutResult{
		ExternalOrderID: data.OrderID,
		Status:          data.Status,
		Raw:             raw,
	}, nil
}

// QueryOrder запрашивает статус депозитного ордера. Только диагностика:
// авторитетный источник статуса - webhook.
func (c *HTTPClient) QueryOrder(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	return c.queryStatus(ctx, "/v1/payment/query", externalOrderID)
}

// QueryPayout запрашивает статус выплаты.
func (c *HTTPClient) QueryPayout(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	return c.queryStatus(ctx, "/v1/payout/query", externalOrderID)
}

func (c *HTTPClient) queryStatus(ctx context.Context, path, externalOrderID string) (*OrderStatus, error) {
	params := c.envelope()
	params["orderId"] = externalOrderID

	var data struct {
		OrderID    string `json:"orderId"`
		Status     string `json:"status"`
		PaidAmount string `json:"paidAmount"`
	}
	if _, err := c.post(ctx, path, params, &data); err != nil {
		return nil, err
	}

	return &OrderStatus{
		ExternalOrderID: data.OrderID,
		Status:          data.Status,
		PaidAmount:      data.PaidAmount,
	}, nil
}

// CheckBalance возвращает остатки мерчанта у процессинга.
func (c *HTTPClient) CheckBalance(ctx context.Context) ([]Balance, error) {
	params := c.envelope()

	var data struct {
		Balances []Balance `json:"balances"`
	}
	if _, err := c.post(ctx, "/v1/merchant/balance", params, &data); err != nil {
		return nil, err
	}
	return data.Balances, nil
}

// post подписывает параметры, выполняет запрос и разворачивает конверт
// ответа. Транспортные сбои отображаются в ErrUnavailable, ненулевые
// коды - в RejectionError.
func (c *HTTPClient) post(ctx context.Context, path string, params map[string]any, out any) (json.RawMessage, error) {
	params[signature.SignField] = signature.Sign(params, c.cfg.Secret)

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	u, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %d", ErrUnavailable, resp.StatusCode)
	}

	var env gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if env.Code != 0 {
		msg := rejectionReasons[env.Code]
		if msg == "" {
			msg = env.Msg
		}
		return nil, &RejectionError{Code: env.Code, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode gateway payload: %w", err)
		}
	}
	return env.Data, nil
}

// translateAccountDetails переводит реквизиты счёта в имена полей
// процессинга в зависимости от метода выплаты.
// Неизвестные методы проходят без изменений.
func translateAccountDetails(method string, details map[string]string) map[string]string {
	var mapping map[string]string
	switch method {
	case "BANK_TRANSFER":
		mapping = map[string]string{
			"holder_name":    "accountName",
			"account_number": "accountNo",
			"bank_code":      "bankCode",
			"branch":         "branchCode",
		}
	case "MOBILE_WALLET":
		mapping = map[string]string{
			"phone":    "walletPhone",
			"provider": "walletProvider",
		}
	case "TRC20", "ERC20":
		mapping = map[string]string{
			"address": "chainAddress",
		}
	default:
		out := make(map[string]string, len(details))
		for k, v := range details {
			out[k] = v
		}
		return out
	}

	out := make(map[string]string, len(details))
	for k, v := range details {
		if translated, ok := mapping[k]; ok {
			out[translated] = v
			continue
		}
		out[k] = v
	}
	return out
}
